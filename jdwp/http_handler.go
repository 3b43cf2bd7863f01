package jdwp

import (
	"fmt"
	"html"
	"net/http"
	"strings"
)

// StatusHandler returns a page showing the engine's attachment state. A POST
// with a "disconnect" field drops the current debugger.
func StatusHandler(e *Engine) http.Handler {
	return httpHandler{e: e}
}

type httpHandler struct {
	e *Engine
}

func (h httpHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// GETs render the current state of the engine.
	if req.Method == http.MethodGet {
		h.handleGet(w)
		return
	}
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := req.ParseForm(); err != nil {
		h.e.log.Error(err, "failed to parse form")
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if _, ok := req.Form["disconnect"]; !ok {
		http.Error(w, "invalid POST: missing disconnect", http.StatusBadRequest)
		return
	}
	h.e.Disconnect()

	// Generate the page after the update.
	h.handleGet(w)
}

func (h httpHandler) handleGet(w http.ResponseWriter) {
	s := h.e.Status()
	var color string
	switch s.State {
	case Attached:
		color = "green"
	case Detached:
		color = "orange"
	case ShuttingDown, Closed:
		color = "red"
	default:
		panic(fmt.Sprintf("unexpected state: %d", int(s.State)))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	sb := strings.Builder{}
	sb.WriteString(`<html>
<head>
	<title>JDWP status</title>
	<style>
	.circle {
		height: 21px;
		width: 21px;
		border-radius: 50%;
		display: inline-block;
	}
	</style>
</head>
<body>
<h1>JDWP status</h1>
<form action="" method="POST">
<div style="
	display:grid;
	gap:3px;
	grid-template-columns: 12em 30em;
	margin-bottom: 10px;"
	>
`)
	sb.WriteString(fmt.Sprintf(`
<div>State:</div>
<div style="display:flex; flex-direction:row; align-items:center; gap:3px">
	<div class="circle" style="background-color:%s;"></div>
	<span>%s</span>
</div>`, color, s.State))
	row := func(k, v string) {
		sb.WriteString(fmt.Sprintf("<div>%s:</div><div>%s</div>\n", k, html.EscapeString(v)))
	}
	row("Transport", fmt.Sprintf("%s (server=%t)", s.Transport, s.Server))
	row("Address", s.ListenAddr)
	if s.State == Attached {
		row("Session", s.Session.String())
		row("Debugger", s.RemoteAddr)
		row("Idle", fmt.Sprintf("%dms", s.LastActivity))
		row("Event requests", fmt.Sprint(s.Requests))
	}
	row("Debug thread", fmt.Sprint(s.DebugThread))
	row("VM", s.Identity.String())

	disconnectAttribute := ""
	if s.State != Attached {
		disconnectAttribute = "disabled"
	}
	sb.WriteString(fmt.Sprintf(`
</div>
<input type="submit" value="Disconnect" name="disconnect" %s/>
</form>
</body>
</html>`, disconnectAttribute))

	if _, err := w.Write([]byte(sb.String())); err != nil {
		h.e.log.Error(err, "failed to write response")
	}
}
