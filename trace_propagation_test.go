package harvester

import (
	"testing"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TestHTTPClientUsesOtelTransport verifies the harvester's HTTP client
// is instrumented with otelhttp.Transport for trace propagation
func TestHTTPClientUsesOtelTransport(t *testing.T) {
	h := New(Config{
		HTTPTimeout: 30,
	}, nil, nil)

	if _, ok := h.httpClient.Transport.(*otelhttp.Transport); !ok {
		t.Error("Harvester HTTP client does not use otelhttp.Transport for trace propagation")
	}

	fetcher := NewHTTPFetcher(0, "")
	if _, ok := fetcher.client.Transport.(*otelhttp.Transport); !ok {
		t.Error("HTTPFetcher client does not use otelhttp.Transport for trace propagation")
	}
}
