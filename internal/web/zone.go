package web

import (
	"net/http"
	"time"
	_ "time/tzdata"
)

// viewerNow returns the server clock shifted into the zone the page
// reports in ?tz= (an IANA name). Missing or unknown zones keep the
// server's clock as is.
func (s *Server) viewerNow(r *http.Request) func() time.Time {
	name := r.URL.Query().Get("tz")
	if name == "" {
		return s.opts.Now
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return s.opts.Now
	}
	return func() time.Time { return s.opts.Now().In(loc) }
}
