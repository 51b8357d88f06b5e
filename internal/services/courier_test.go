// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/schildwaechter/solarcourier/internal/config"

	"github.com/icholy/digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInverter answers like the device does: a digest challenge first, then the payload
func fakeInverter(t *testing.T, username, password string, status int, payload string) *httptest.Server {
	t.Helper()
	chal := &digest.Challenge{
		Realm:     "GoAhead",
		Nonce:     "5f2b8e1d7a",
		Algorithm: "MD5",
		QOP:       []string{"auth"},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var authorized bool
		if auth := r.Header.Get("Authorization"); auth != "" {
			cred, err := digest.ParseCredentials(auth)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			expected, err := digest.Digest(chal, digest.Options{
				Method:   r.Method,
				URI:      r.URL.RequestURI(),
				Cnonce:   cred.Cnonce,
				Count:    cred.Nc,
				Username: username,
				Password: password,
			})
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			authorized = cred.Response == expected.Response
		}
		if !authorized {
			w.Header().Add("WWW-Authenticate", chal.String())
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func courierIdentity(username, password string) config.Identity {
	return config.Identity{
		Username:     username,
		Password:     password,
		DeviceIP:     "127.0.0.1",
		SerialNumber: "CSI123",
		SessionID:    "4711",
	}
}

func TestNimbleCourierDigest(t *testing.T) {
	server := fakeInverter(t, "installer", "s3cret", http.StatusOK, "{V2HST:230.5&DST:10.2}")
	courier := NewNimbleCourier(courierIdentity("installer", "s3cret"), time.Second)

	status, body, err := courier.Fetch(context.Background(), server.URL+"/getinfo.cgi?CSI123&4711&20240101&20240101&Z0&V2HST&DST")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "{V2HST:230.5&DST:10.2}", body)
}

func TestNimbleCourierWrongPassword(t *testing.T) {
	server := fakeInverter(t, "installer", "s3cret", http.StatusOK, "{DST:1}")
	courier := NewNimbleCourier(courierIdentity("installer", "wrong"), time.Second)

	status, body, err := courier.Fetch(context.Background(), server.URL+"/getinfo.cgi?CSI123&4711&20240101&20240101&Z0&DST")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Empty(t, body)
}

func TestNimbleCourierPassesStatusThrough(t *testing.T) {
	server := fakeInverter(t, "installer", "s3cret", http.StatusInternalServerError, "device busy")
	courier := NewNimbleCourier(courierIdentity("installer", "s3cret"), time.Second)

	status, body, err := courier.Fetch(context.Background(), server.URL+"/getinfo.cgi?CSI123&4711&20240101&20240101&Z0&DST")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Empty(t, body)
}

func TestNimbleCourierConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	courier := NewNimbleCourier(courierIdentity("installer", "s3cret"), time.Second)
	_, _, err := courier.Fetch(context.Background(), url+"/getinfo.cgi")

	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr), "got %v", err)
	assert.Equal(t, Connection, upstreamErr.Kind)
}

func TestNimbleCourierTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	courier := NewNimbleCourier(courierIdentity("installer", "s3cret"), 100*time.Millisecond)
	_, _, err := courier.Fetch(context.Background(), server.URL+"/getinfo.cgi")

	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr), "got %v", err)
	assert.Equal(t, Timeout, upstreamErr.Kind)
}

func TestNimbleCourierBadURL(t *testing.T) {
	courier := NewNimbleCourier(courierIdentity("installer", "s3cret"), 0)
	_, _, err := courier.Fetch(context.Background(), "http://[::1")

	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr), "got %v", err)
	assert.Equal(t, Network, upstreamErr.Kind)
}

func TestClassifyTransportError(t *testing.T) {
	assert.Equal(t, Timeout, classifyTransportError(context.DeadlineExceeded))
	assert.Equal(t, Network, classifyTransportError(io.ErrUnexpectedEOF))
	assert.Equal(t, Network, classifyTransportError(errors.New("stream reset")))
}

func TestUpstreamErrorUnwraps(t *testing.T) {
	err := &UpstreamError{Kind: Timeout, Cause: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "inverter timeout failure: context deadline exceeded", err.Error())
}

func TestNimbleCourierErrorsHideSession(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	courier := NewNimbleCourier(courierIdentity("installer", "s3cret"), time.Second)
	_, _, err := courier.Fetch(context.Background(), url+"/getinfo.cgi?CSI123&SESSIONXYZ&20240101&20240101&Z0&DST")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SESSIONXYZ")
}
