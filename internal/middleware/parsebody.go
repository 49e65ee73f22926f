package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// ParsedBodyKey is the echo context key under which ParseBody stores a decoded body.
const ParsedBodyKey = "parsed_body"

// ParseBody returns an Echo middleware that fully reads and decodes JSON and
// urlencoded form POST bodies. The decoded value (any for JSON, url.Values
// for forms) is stored under ParsedBodyKey and the request body is replaced
// with http.NoBody. Other requests pass through untouched.
func ParseBody() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodPost || req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			mediaType, _, _ := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
			if mediaType != echo.MIMEApplicationJSON && mediaType != echo.MIMEApplicationForm {
				return next(c)
			}

			data, err := io.ReadAll(req.Body)
			if err != nil {
				return err
			}
			_ = req.Body.Close()

			var parsed any
			switch mediaType {
			case echo.MIMEApplicationJSON:
				dec := json.NewDecoder(bytes.NewReader(data))
				dec.UseNumber()
				if err := dec.Decode(&parsed); err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
				}
			default:
				values, err := url.ParseQuery(string(data))
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
				}
				parsed = values
			}

			c.Set(ParsedBodyKey, parsed)
			req.Body = http.NoBody
			req.ContentLength = 0
			return next(c)
		}
	}
}
