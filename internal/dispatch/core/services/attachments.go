package services

import (
	"context"
	"encoding/base64"

	"ride-dispatch/internal/dispatch/core/myerrors"
	"ride-dispatch/internal/dispatch/core/ports"
	"ride-dispatch/internal/mylogger"
)

// storeAttachments decodes inbound base64 payloads and persists each blob,
// returning the reference paths the core keeps.
func storeAttachments(ctx context.Context, store ports.IImageStore, encoded []string) ([]string, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	urls := make([]string, 0, len(encoded))
	for _, img := range encoded {
		data, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return nil, myerrors.Wrap(myerrors.KindInvalidArgument, "attachment is not valid base64", err)
		}
		url, err := store.Save(ctx, data)
		if err != nil {
			return nil, myerrors.Wrap(myerrors.KindDependency, "cannot store attachment", err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// materializeAttachments re-encodes stored blobs for transport inside a
// notification payload. A fetch failure drops that image and keeps going:
// the notification itself is best-effort.
func materializeAttachments(ctx context.Context, store ports.IImageStore, log mylogger.Logger, urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		data, err := store.Fetch(ctx, url)
		if err != nil {
			log.Warn("cannot materialize attachment", "url", url, "err", err.Error())
			continue
		}
		out = append(out, base64.StdEncoding.EncodeToString(data))
	}
	return out
}
