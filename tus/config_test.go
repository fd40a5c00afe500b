package tus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    Config
		wantErr bool
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			want:    DefaultConfig(),
		},
		{
			name: "all values",
			envVars: map[string]string{
				ChunkSizeEnvKey:   "512KiB",
				PayloadSizeEnvKey: "4MB",
				MaxRetriesEnvKey:  "2",
				HeadersEnvKey:     "Authorization=Bearer abc| x-upload-source = ci ",
				VerboseEnvKey:     "true",
			},
			want: Config{
				ChunkSize:   512 * 1024,
				PayloadSize: 4 * 1024 * 1024,
				MaxRetries:  2,
				Headers: map[string]string{
					"Authorization":   "Bearer abc",
					"X-Upload-Source": "ci",
				},
				Verbose: true,
			},
		},
		{
			name:    "plain byte count",
			envVars: map[string]string{ChunkSizeEnvKey: "1000"},
			want: Config{
				ChunkSize:   1000,
				PayloadSize: DefaultPayloadSize,
				Headers:     map[string]string{},
			},
		},
		{
			name:    "invalid chunk size",
			envVars: map[string]string{ChunkSizeEnvKey: "lots"},
			wantErr: true,
		},
		{
			name:    "zero payload size",
			envVars: map[string]string{PayloadSizeEnvKey: "0"},
			wantErr: true,
		},
		{
			name:    "negative retry count",
			envVars: map[string]string{MaxRetriesEnvKey: "-1"},
			wantErr: true,
		},
		{
			name:    "header without value separator",
			envVars: map[string]string{HeadersEnvKey: "Authorization"},
			wantErr: true,
		},
		{
			name:    "invalid verbose flag",
			envVars: map[string]string{VerboseEnvKey: "maybe"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfigFromEnv(fakeEnvRepo{envVars: tt.envVars})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
