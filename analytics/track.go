package analytics

import (
	"fmt"
	"time"

	"github.com/bitrise-io/go-tusclient/tus"
	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

type TrackerFactory func(log.Logger, ...analytics.Properties) analytics.Tracker

const (
	UploadSessionIDEnvKey = "TUS_UPLOAD_SESSION_ID"
	UploadSessionID       = "upload_session_id"

	UploadFinishedEvent = "tus_upload_finished"
)

func NewUploadTracker(repository env.Repository, logger log.Logger, trackerFactory TrackerFactory) (analytics.Tracker, error) {
	sessionID := repository.Get(UploadSessionIDEnvKey)
	if sessionID == "" {
		return nil, fmt.Errorf("no upload session ID found")
	}
	return trackerFactory(logger, analytics.Properties{UploadSessionID: sessionID}), nil
}

func NewDefaultUploadTracker(repository env.Repository, logger log.Logger) (analytics.Tracker, error) {
	return NewUploadTracker(repository, logger, analytics.NewDefaultTracker)
}

// Target reports the completion of the wrapped target to a tracker.
type Target struct {
	target  tus.Target
	url     string
	tracker analytics.Tracker
	started time.Time
	now     func() time.Time
}

// NewTarget wraps target. The upload time is measured from this call.
func NewTarget(target tus.Target, url string, tracker analytics.Tracker) *Target {
	return &Target{
		target:  target,
		url:     url,
		tracker: tracker,
		started: time.Now(),
		now:     time.Now,
	}
}

func (t *Target) Size() int64 {
	return t.target.Size()
}

func (t *Target) UploadFinished() {
	t.target.UploadFinished()

	uploadTime := t.now().Sub(t.started)
	t.tracker.Enqueue(UploadFinishedEvent, analytics.Properties{
		"upload_url":        t.url,
		"upload_size_bytes": t.target.Size(),
		"upload_time_s":     uploadTime.Truncate(time.Second).Seconds(),
	})
}

// Wait blocks until the queued events were sent.
func (t *Target) Wait() {
	t.tracker.Wait()
}
