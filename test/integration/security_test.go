// Package integration contains security-focused integration tests.
//
// These tests verify that the security constraints are properly enforced,
// including origin validation, message size limits, and rate limiting.
package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/server"
	"github.com/Tyrowin/roomrelay/test/testhelpers"
)

func dialExpectingRejection(t *testing.T, wsURL, origin string) {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(origin))
	if err == nil {
		_ = conn.Close()
		if resp != nil {
			_ = resp.Body.Close()
		}
		t.Fatalf("Expected upgrade with origin %q to be rejected", origin)
	}
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Expected status %d for origin %q, got %d", http.StatusForbidden, origin, resp.StatusCode)
		}
	}
}

// TestOriginValidationEdgeCases tests various edge cases for origin validation.
func TestOriginValidationEdgeCases(t *testing.T) {
	_, _, wsURL := newRelayServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, "http://example.com")
	})

	t.Run("Missing Origin header", func(t *testing.T) {
		dialExpectingRejection(t, wsURL, "")
	})

	t.Run("Disallowed origin", func(t *testing.T) {
		dialExpectingRejection(t, wsURL, "http://blocked.test")
	})

	t.Run("Malformed Origin URL", func(t *testing.T) {
		malformedOrigins := []string{
			"not-a-url",
			"://missing-scheme",
			"http://",
			"javascript:alert(1)",
		}

		for _, origin := range malformedOrigins {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(origin))
			if err == nil {
				_ = conn.Close()
				t.Errorf("Expected connection to fail with malformed origin %q", origin)
			}
			if resp != nil {
				_ = resp.Body.Close()
			}
		}
	})

	t.Run("Case sensitivity in origin matching", func(t *testing.T) {
		// These normalize to the allow-listed http://example.com and must match.
		caseVariations := []string{
			"http://EXAMPLE.COM",
			"http://Example.Com",
			"HTTP://example.com",
		}

		for _, origin := range caseVariations {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(origin))
			if err != nil {
				t.Errorf("Expected origin %q to be allowed (case-insensitive): %v", origin, err)
			} else {
				_ = conn.Close()
			}
			if resp != nil {
				_ = resp.Body.Close()
			}
		}
	})
}

// TestWildcardOriginAllowsEverything verifies the "*" entry disables origin
// filtering entirely.
func TestWildcardOriginAllowsEverything(t *testing.T) {
	_, _, wsURL := newRelayServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"*"}
	})

	for _, origin := range []string{"http://anywhere.test", "https://another.example"} {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(origin))
		if err != nil {
			t.Errorf("Expected wildcard config to allow origin %q: %v", origin, err)
			continue
		}
		_ = conn.Close()
		if resp != nil {
			_ = resp.Body.Close()
		}
	}
}

// TestExplicitAllowedOriginList verifies that origins outside the configured
// list are rejected while listed ones connect and can use the room protocol.
func TestExplicitAllowedOriginList(t *testing.T) {
	allowedOrigin := "http://allowed.test"
	_, _, wsURL := newRelayServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, allowedOrigin)
	})

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, newOriginHeader(allowedOrigin))
	if err != nil {
		t.Fatalf("Expected allowed origin to connect: %v", err)
	}
	defer func() { _ = conn.Close() }()
	if resp != nil {
		_ = resp.Body.Close()
	}

	reader := testhelpers.NewEventReader(conn)
	nick := joinAndIdentify(t, conn, reader, "secure")
	if nick == "" {
		t.Error("Expected a nickname after joining through an allowed origin")
	}

	dialExpectingRejection(t, wsURL, "http://intruder.test")
}

// TestSecurityConstraintsCombined verifies origin checks and message size
// limits hold at the same time.
func TestSecurityConstraintsCombined(t *testing.T) {
	const limit int64 = 256
	_, testServer, wsURL := newRelayServer(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = limit
	})

	dialExpectingRejection(t, wsURL, "http://blocked.test")

	conn, reader := dialRelay(t, wsURL, testServer.URL)
	joinAndIdentify(t, conn, reader, "guarded")

	peerConn, peerReader := dialRelay(t, wsURL, testServer.URL)
	joinAndIdentify(t, peerConn, peerReader, "guarded")

	oversized := strings.Repeat("B", int(limit)*2)
	if err := testhelpers.SendChatMessage(conn, "guarded", oversized); err != nil && !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Fatalf("Unexpected error writing oversized message: %v", err)
	}
	peerReader.ExpectNoMessage(t, 300*time.Millisecond)

	// The peer within limits is unaffected.
	if err := testhelpers.SendChatMessage(peerConn, "guarded", "within limits"); err != nil {
		t.Fatalf("Failed to send within-limit message: %v", err)
	}
	peerReader.ExpectMessage(t, "within limits", 2*time.Second)
}
