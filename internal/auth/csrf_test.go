package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/session-bff/internal/domain"
)

func TestCheckCSRF(t *testing.T) {
	require.True(t, CheckCSRF("abc", "abc"))
	require.False(t, CheckCSRF("abc", "abcd"))
	require.False(t, CheckCSRF("", "abc"))
	require.False(t, CheckCSRF("abc", ""))
	require.False(t, CheckCSRF("", ""))
	require.False(t, CheckCSRF("abc", "ABC"))
	require.False(t, CheckCSRF("abc", " abc"))
}

func TestNewCSRFToken(t *testing.T) {
	first, err := NewCSRFToken()
	require.NoError(t, err)
	second, err := NewCSRFToken()
	require.NoError(t, err)

	require.Len(t, first, 32)
	require.NotEqual(t, first, second)
}

func TestCSRFMiddleware(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if err == domain.ErrCSRF {
				return c.SendStatus(http.StatusForbidden)
			}
			return fiber.DefaultErrorHandler(c, err)
		},
	})
	app.Use(CSRFMiddleware("csrf-token", "X-CSRF-Token"))
	handler := func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) }
	app.Get("/thing", handler)
	app.Head("/thing", handler)
	app.Post("/thing", handler)
	app.Delete("/thing", handler)

	t.Run("safe methods bypass", func(t *testing.T) {
		for _, method := range []string{http.MethodGet, http.MethodHead} {
			resp, err := app.Test(httptest.NewRequest(method, "/thing", nil))
			require.NoError(t, err)
			require.Equal(t, http.StatusNoContent, resp.StatusCode)
		}
	})

	t.Run("matching values pass", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/thing", nil)
		req.AddCookie(&http.Cookie{Name: "csrf-token", Value: "abc"})
		req.Header.Set("X-CSRF-Token", "abc")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("missing header fails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/thing", nil)
		req.AddCookie(&http.Cookie{Name: "csrf-token", Value: "abc"})
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("mismatch fails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/thing", nil)
		req.AddCookie(&http.Cookie{Name: "csrf-token", Value: "abc"})
		req.Header.Set("X-CSRF-Token", "abcd")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
