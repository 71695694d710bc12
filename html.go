/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/cardparty/games/cards"
	"github.com/julienschmidt/httprouter"
)

const pageStyle = `body{font-family:sans-serif;max-width:40rem;margin:2rem auto;padding:0 1rem;}` +
	`button{font-size:1rem;padding:.5rem 1rem;}img{display:block;margin:1rem 0;}`

func homePage(cfg *Config) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	b.WriteString(`<style>` + pageStyle + `</style><title>cardparty</title></head><body>`)
	b.WriteString(`<h1>cardparty</h1>`)
	fmt.Fprintf(&b, `<p><a href="%s/cards">Join an open game</a></p>`, cfg.prefix)
	fmt.Fprintf(&b, `<form method="post" action="%s/cards"><button type="submit">Start a private game</button></form>`, cfg.prefix)
	b.WriteString(`</body></html>`)

	return b.String()
}

func gamePage(cfg *Config, info cards.GameInfo) string {
	var b strings.Builder

	base := cfg.prefix + "/cards/" + info.ID

	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	fmt.Fprintf(&b, `<style>%s</style><title>cardparty: %s</title></head><body>`, pageStyle, html.EscapeString(info.ID))
	fmt.Fprintf(&b, `<h1>Game %s</h1>`, html.EscapeString(info.ID))
	fmt.Fprintf(&b, `<p>%d player(s), %s, round %d</p>`, len(info.Players), info.Phase, info.Round)
	if len(info.Players) > 0 {
		b.WriteString(`<ul>`)
		for _, s := range info.Scores {
			fmt.Fprintf(&b, `<li>%s: %d</li>`, html.EscapeString(s.Name), s.Score)
		}
		b.WriteString(`</ul>`)
	}
	fmt.Fprintf(&b, `<img src="%s/qr" alt="QR code for this game" width="320" height="320">`, base)
	fmt.Fprintf(&b, `<p>Connect a client to <code>%s/ws</code>.</p>`, base)
	b.WriteString(`</body></html>`)

	return b.String()
}

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := io.WriteString(w, homePage(cfg))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveNotFound(cfg *Config, w http.ResponseWriter, errs chan<- error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(http.StatusNotFound)

	_, err := io.WriteString(w, newPage("Not Found", "That game does not exist (any more)."))
	if err != nil {
		errs <- err
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: Amazonbot
Disallow: /

User-agent: Applebot-Extended
Disallow: /

User-agent: Bytespider
Disallow: /

User-agent: CCBot
Disallow: /

User-agent: ClaudeBot
Disallow: /

User-agent: Google-Extended
Disallow: /

User-agent: GPTBot
Disallow: /

User-agent: meta-externalagent
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}

func registerHome(cfg *Config, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/", serveHomePage(cfg, errs))
	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))
	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))
}
