package gateway

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/pmpgw/core/config"
)

// Mirror fires a copy of the inbound request at cfg.URI through cfg's
// client, sampled at cfg.Sample, and discards the response (supplemented
// feature, original_source's middleware/traffic_mirror.rs). It never blocks
// or influences the primary response.
func Mirror(cfg *config.TrafficMirrorConfig, registry *Registry, method string, body []byte, log *logrus.Entry) {
	if cfg == nil {
		return
	}
	if cfg.Sample < 1 && rand.Float64() >= cfg.Sample {
		return
	}
	client, ok := registry.Get(cfg.ClientID)
	if !ok {
		return
	}
	hc, ok := client.(*httpClient)
	if !ok {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, method, hc.baseURL(-1)+cfg.URI, bytes.NewReader(body))
		if err != nil {
			return
		}
		resp, err := hc.http.Do(req)
		if err != nil {
			if log != nil {
				log.WithError(err).Debug("traffic mirror dispatch failed")
			}
			return
		}
		resp.Body.Close()
	}()
}
