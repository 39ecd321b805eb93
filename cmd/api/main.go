package main

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"

	"roomledger/pkg/logging"
)

func main() {
	logging.Setup()

	ledgerServiceURL, _ := url.Parse(getEnv("LEDGER_SERVICE_URL", "http://localhost:8082"))
	membershipServiceURL, _ := url.Parse(getEnv("MEMBERSHIP_SERVICE_URL", "http://localhost:8083"))

	ledgerProxy := httputil.NewSingleHostReverseProxy(ledgerServiceURL)
	membershipProxy := httputil.NewSingleHostReverseProxy(membershipServiceURL)

	http.Handle("/api/v1/ledger/", http.StripPrefix("/api/v1/ledger", ledgerProxy))
	http.Handle("/api/v1/members/", http.StripPrefix("/api/v1/members", membershipProxy))

	port := getEnv("PORT", "8080")
	slog.Info("API gateway listening", "port", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
