package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var allowHeaders = []string{
	echo.HeaderOrigin,
	echo.HeaderContentType,
	echo.HeaderAccept,
	echo.HeaderAuthorization,
	echo.HeaderXRequestedWith,
	echo.HeaderAccessControlRequestMethod,
	echo.HeaderAccessControlRequestHeaders,
	HeaderUserID,
}

var allowMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch,
	http.MethodPost, http.MethodDelete, http.MethodOptions,
}

// EchoCORS is the CORS policy of the REST service. Identity travels in
// X-User-ID rather than cookies, so any origin is allowed and credentials
// are not.
func EchoCORS() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: allowMethods,
		AllowHeaders: allowHeaders,
		MaxAge:       86400,
	})
}

// CORS applies the same policy to plain net/http routers.
func CORS(next http.Handler) http.Handler {
	methods := strings.Join(allowMethods, ", ")
	headers := strings.Join(allowHeaders, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.Header().Set("Access-Control-Allow-Headers", headers)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
