package webserver

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedBody(t *testing.T) {
	tests := []struct {
		name     string
		limit    int64
		size     int
		exceeded bool
	}{
		{name: "under", limit: 10, size: 9},
		{name: "exact", limit: 10, size: 10},
		{name: "over", limit: 10, size: 11, exceeded: true},
		{name: "empty limit", limit: 0, size: 1, exceeded: true},
		{name: "largest limit", limit: math.MaxInt64, size: 64 << 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := &limitedBody{
				ReadCloser: io.NopCloser(bytes.NewReader(bytes.Repeat([]byte("x"), tt.size))),
				remaining:  tt.limit,
			}

			data, err := io.ReadAll(body)
			assert.Equal(t, tt.exceeded, body.overflowed())
			if tt.exceeded {
				assert.Equal(t, errBodyTooLarge, err)
				assert.Len(t, data, int(tt.limit))
				return
			}
			require.NoError(t, err)
			assert.Len(t, data, tt.size)
		})
	}

	var none *limitedBody
	assert.False(t, none.overflowed())
}
