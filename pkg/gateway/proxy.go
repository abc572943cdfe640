package gateway

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkexplorer/offworker/internal/logger"
	"github.com/pkexplorer/offworker/pkg/dispatch"
	"github.com/pkexplorer/offworker/pkg/worker"
)

// hopHeaders are connection-scoped headers stripped before forwarding.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// proxyHandler sends intercepted application traffic through the
// dispatcher. While the registration is not activated (or has gone
// redundant) requests bypass the strategies and hit the network
// directly.
type proxyHandler struct {
	registration *worker.Registration
	dispatcher   *dispatch.Dispatcher
	fetcher      dispatch.Fetcher
	origin       string
}

func (p *proxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	outbound, err := p.outboundRequest(r)
	if err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}

	if !p.registration.Active() {
		p.bypass(w, outbound)
		return
	}

	work := worker.NewWork()
	resp := p.dispatcher.Dispatch(r.Context(), outbound, work)
	writeProxied(w, resp)

	// The fetch event settles when its background work does; the
	// response does not wait for it.
	go func() {
		if err := work.Wait(); err != nil {
			logger.Warn("Background fetch work failed", logger.Err(err))
		}
	}()
}

// bypass forwards straight to the network, relaying the raw outcome.
func (p *proxyHandler) bypass(w http.ResponseWriter, outbound *http.Request) {
	resp, err := p.fetcher.Do(outbound)
	if err != nil {
		logger.Warn("Bypass request failed",
			logger.Method(outbound.Method),
			logger.URL(outbound.URL.String()),
			logger.Err(err),
		)
		JSON(w, http.StatusBadGateway, ErrorResponse("upstream unreachable"))
		return
	}
	writeProxied(w, resp)
}

// outboundRequest rebuilds the inbound request as an upstream one.
// Absolute-form request URLs (forward-proxy style) are used as-is;
// origin-form paths resolve against the configured application origin.
func (p *proxyHandler) outboundRequest(r *http.Request) (*http.Request, error) {
	target := *r.URL
	if !target.IsAbs() {
		origin, err := url.Parse(p.origin)
		if err != nil || origin.Host == "" {
			return nil, &url.Error{Op: "resolve", URL: r.URL.String(), Err: err}
		}
		target.Scheme = origin.Scheme
		target.Host = origin.Host
	}

	outbound, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}

	outbound.Header = r.Header.Clone()
	for _, h := range hopHeaders {
		outbound.Header.Del(h)
	}
	// The Host header belongs to the upstream, not the gateway.
	outbound.Host = target.Host
	return outbound, nil
}

// writeProxied copies a dispatched response to the client.
func writeProxied(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		if isHopHeader(key) {
			continue
		}
		for _, v := range values {
			header.Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Debug("Failed to stream proxied body", logger.Err(err))
	}
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}
