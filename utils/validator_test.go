package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	TelegramID int64  `query:"telegram_id" validate:"required,gt=0"`
	Name       string `json:"name" validate:"required,min=4,max=64"`
	JoinCode   string `json:"join_code" validate:"omitempty,joincode"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		req     sampleRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  sampleRequest{TelegramID: 1, Name: "Team", JoinCode: "Ab3dEf7hIj9kLm0n"},
		},
		{
			name:    "missing identity",
			req:     sampleRequest{Name: "Team"},
			wantErr: "telegram_id is required",
		},
		{
			name:    "short name",
			req:     sampleRequest{TelegramID: 1, Name: "abc"},
			wantErr: "name must be at least 4 characters",
		},
		{
			name:    "malformed code",
			req:     sampleRequest{TelegramID: 1, Name: "Team", JoinCode: "nope"},
			wantErr: "join_code must be a 16 character join code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.req)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
