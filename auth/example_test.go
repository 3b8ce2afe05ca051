package auth_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/jonwraymond/sampleops/auth"
)

func ExampleJWTAuthenticator_Authenticate() {
	authn := auth.NewJWTAuthenticator(auth.JWTConfig{
		Issuer:   "sampleops",
		Audience: "sampleops-api",
	}, auth.NewStaticKeyProvider([]byte("my-secret-key")))

	token, err := authn.Issue(context.Background(), "ci-bot", []string{"admin"}, time.Hour)
	if err != nil {
		fmt.Println("issue:", err)
		return
	}

	id, err := authn.Authenticate(context.Background(), token)
	if err != nil {
		fmt.Println("authenticate:", err)
		return
	}
	fmt.Println("Subject:", id.Subject)
	fmt.Println("Admin:", id.HasRole("admin"))
	// Output:
	// Subject: ci-bot
	// Admin: true
}

func ExampleMiddleware() {
	authn := auth.NewJWTAuthenticator(auth.JWTConfig{}, auth.NewStaticKeyProvider([]byte("my-secret-key")))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello ", auth.SubjectFromContext(r.Context()))
	})
	handler := auth.Middleware(authn, nil)(mux)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil))
	fmt.Println(w.Code)

	token, _ := authn.Issue(context.Background(), "ops", nil, time.Minute)
	r := httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	fmt.Println(w.Code, w.Body.String())
	// Output:
	// 401
	// 200 hello ops
}
