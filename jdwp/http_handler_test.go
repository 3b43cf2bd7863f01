package jdwp

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusHandler(t *testing.T) {
	t.Parallel()

	e, acc := startTestEngine(t)
	srv := httptest.NewServer(StatusHandler(e))
	defer srv.Close()

	get := func() string {
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	page := get()
	require.Contains(t, page, "detached")
	require.Contains(t, page, "dt_socket (server=true)")
	require.Contains(t, page, "disabled")

	conn := attach(t, e, acc)
	page = get()
	require.Contains(t, page, "attached")
	require.Contains(t, page, "fake")

	resp, err := http.PostForm(srv.URL, url.Values{})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.True(t, e.IsActive())

	resp, err = http.PostForm(srv.URL, url.Values{"disconnect": {"Disconnect"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, conn.isClosed())
	require.Eventually(t, func() bool { return e.State() == Detached }, testTimeout, time.Millisecond)

	req, err := http.NewRequest(http.MethodDelete, srv.URL, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
