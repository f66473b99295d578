package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stickychat/internal/pkg/errs"
	"stickychat/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.Discard()
	m.Run()
}

func TestBindJSON(t *testing.T) {
	type input struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name        string
		contentType string
		body        string
		wantCode    int
	}{
		{"valid", "application/json", `{"name":"town"}`, 0},
		{"charset", "application/json; charset=utf-8", `{"name":"town"}`, 0},
		{"wrong media type", "text/plain", `{"name":"town"}`, errs.ErrUnsupportedMediaType},
		{"unknown field", "application/json", `{"name":"town","x":1}`, errs.ErrInvalidJSONFormat},
		{"broken json", "application/json", `{"name":`, errs.ErrInvalidJSONFormat},
		{"trailing content", "application/json", `{"name":"a"} {"name":"b"}`, errs.ErrExtraContentInBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)

			var dst input
			err := BindJSON(httptest.NewRecorder(), r, &dst)
			if tt.wantCode == 0 {
				require.Nil(t, err)
				assert.Equal(t, "town", dst.Name)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.Code)
		})
	}
}
