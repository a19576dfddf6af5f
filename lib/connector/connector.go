package connector

import (
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

type Error struct {
	Code    int
	Message string
	Path    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("connector error, request path: %s, code: %d, message: %s", e.Path, e.Code, e.Message)
}

// Receive executes the request and decodes the standard response envelope.
func Receive[T any](r *resty.Request, path string, method string) (*T, error) {
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
		Data  *T     `json:"data,omitempty"`
	}
	r.SetResult(&result)
	r.SetError(&result)
	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() || !result.OK {
		return nil, &Error{
			Code:    resp.StatusCode(),
			Message: result.Error,
			Path:    path,
		}
	}
	return result.Data, nil
}

func ReceiveEmpty(r *resty.Request, path string, method string) error {
	_, err := Receive[struct{}](r, path, method)
	return err
}

// ParseRespError decodes an error envelope from a raw response body.
func ParseRespError(body []byte, resp *resty.Response) error {
	var errResp ErrResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &Error{
			Code:    resp.StatusCode(),
			Message: errResp.Error,
			Path:    resp.Request.URL,
		}
	}
	return &Error{
		Code:    resp.StatusCode(),
		Message: string(body),
		Path:    resp.Request.URL,
	}
}
