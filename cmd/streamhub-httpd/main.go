// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// streamhub-httpd serves a stream's output directory over HTTP: the
// generated player page plus the HLS playlist and segments the transcoder
// writes next to it. The orchestrator launches one instance per WebRTC
// stream.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rapidaai/streamhub/pkg/commons"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	root := flag.String("root", ".", "directory to serve")
	flag.Parse()

	logger, err := commons.NewApplicationLogger(commons.Name("streamhub-httpd"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	fs := http.FileServer(http.Dir(*root))
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Segments rotate quickly; caching a stale playlist stalls playback.
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		fs.ServeHTTP(w, r)
	})

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infow("serving stream directory", "addr", *addr, "root", *root)
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("http server failed", "error", err.Error())
	}
}
