package dem

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	getter "github.com/hashicorp/go-getter"
)

// Fetch downloads the raster at url to dst, then its metadata sidecar next to
// it. Any go-getter source is accepted. When transport is not nil, HTTP
// downloads go through it.
func Fetch(ctx context.Context, url, dst string, transport http.RoundTripper) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.New("creating dem directory failed").
			WithTag("path", dst).
			Wrap(err)
	}

	opts := []getter.ClientOption{getter.WithContext(ctx)}
	if transport != nil {
		httpGetter := &getter.HttpGetter{
			Netrc:  true,
			Client: &http.Client{Transport: transport},
		}

		getters := make(map[string]getter.Getter, len(getter.Getters))
		for k, v := range getter.Getters {
			getters[k] = v
		}
		getters["http"] = httpGetter
		getters["https"] = httpGetter
		opts = append(opts, getter.WithGetters(getters))
	}

	for _, f := range []struct {
		src string
		dst string
	}{
		{src: url, dst: dst},
		{src: MetadataPath(url), dst: MetadataPath(dst)},
	} {
		logs.WithTag("src", f.src).
			WithTag("dst", f.dst).
			Info("fetching dem file")

		if err := getter.GetFile(f.dst, f.src, opts...); err != nil {
			return errors.New("fetching dem file failed").
				WithType(ErrTypeMissingSource).
				WithTag("src", f.src).
				WithTag("dst", f.dst).
				Wrap(err)
		}
	}
	return nil
}
