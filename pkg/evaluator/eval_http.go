package evaluator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/sandrolain/gorigami/pkg/handlers"
	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

const defaultMaxFetchSize = 32 << 20

// fetch retrieves scheme://keys... and returns the body packed, to be
// unpacked by the handler registered for its extension.
func (e *Evaluator) fetch(ctx context.Context, scheme string, keys []interface{}) (interface{}, error) {
	if len(keys) == 0 {
		return nil, types.NewError(types.ErrFetch, "missing host", -1)
	}
	parts := make([]string, len(keys))
	last := len(keys) - 1
	for i, k := range keys {
		parts[i] = tree.KeyString(k)
		if i < last {
			parts[i] = tree.RemoveSlash(parts[i])
		}
	}
	url := scheme + "://" + strings.Join(parts, "/")

	if e.opts.Debug {
		e.logger.Debug("fetching resource", "url", url)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewError(types.ErrFetch, fmt.Sprintf("invalid URL %s", url), -1).WithCause(err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrFetch, fmt.Sprintf("cannot fetch %s", url), -1).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, types.NewError(types.ErrFetch,
			fmt.Sprintf("cannot fetch %s: %s", url, resp.Status), -1)
	}

	limit := e.opts.MaxFetchSize
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, types.NewError(types.ErrFetch, fmt.Sprintf("cannot read %s", url), -1).WithCause(err)
	}
	if int64(len(data)) > limit {
		return nil, types.NewError(types.ErrFetch,
			fmt.Sprintf("%s is larger than %d bytes", url, limit), -1)
	}
	return &handlers.Packed{
		Name:     tree.RemoveSlash(parts[last]),
		Data:     data,
		Registry: e.opts.Handlers,
	}, nil
}
