package s3

import (
	"context"

	"xdao.co/memhub/storage"
	"xdao.co/memhub/storage/registry"
)

func init() {
	registry.MustRegister(registry.Driver{
		Name:        "s3",
		Description: "S3-compatible bucket; params: bucket, prefix, region, endpoint, path_style, access_key_id, secret_access_key",
		Usage:       registry.UsageAll,
		Open: func(ctx context.Context, p registry.Params) (storage.Backend, func() error, error) {
			bucket, err := p.Required("bucket")
			if err != nil {
				return nil, nil, err
			}
			pathStyle, err := p.Bool("path_style", false)
			if err != nil {
				return nil, nil, err
			}
			s, err := New(ctx, Config{
				Bucket:          bucket,
				Prefix:          p.Get("prefix", ""),
				Region:          p.Get("region", ""),
				Endpoint:        p.Get("endpoint", ""),
				PathStyle:       pathStyle,
				AccessKeyID:     p.Get("access_key_id", ""),
				SecretAccessKey: p.Get("secret_access_key", ""),
				SessionToken:    p.Get("session_token", ""),
			})
			if err != nil {
				return nil, nil, err
			}
			return s, nil, nil
		},
	})
}
