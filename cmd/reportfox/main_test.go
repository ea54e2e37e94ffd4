package main

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMetricsAuthorizer(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	auth := metricsAuthorizer("ops", string(hash))
	if !auth("ops", "s3cret") {
		t.Fatal("expected valid credentials to pass")
	}
	if auth("ops", "wrong") {
		t.Fatal("expected wrong password to fail")
	}
	if auth("someone", "s3cret") {
		t.Fatal("expected wrong user to fail")
	}
	if metricsAuthorizer("ops", "")("ops", "") {
		t.Fatal("expected an empty hash to lock the endpoint")
	}
}
