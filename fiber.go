package webdav

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

var ExtendedMethods = append(fiber.DefaultMethods[:], Methods...)

// Config wires a Handler for mounting as a fiber.Handler, grounded on the
// teacher's fiber.go adaptor.HTTPHandler bridge, generalized from a single
// FileSystem/LockSystem pair to a Router over multiple Shares.
type Config struct {
	// Prefix is the URL path prefix to mount the WebDAV server on.
	Prefix string

	// Router dispatches each request path to its mounted Share, falling
	// back to the synthetic root listing for unmatched paths. Build it
	// with NewRouter, mount Shares, then SetRoot(NewRootProvider(router))
	// before passing it here.
	Router *Router

	// Locks is the lock table LOCK/UNLOCK and If:-header enforcement use;
	// nil falls back to a fresh in-memory LockManager. Locking cannot be
	// switched off through this field.
	Locks *LockManager

	// Props stores dead properties across PROPFIND/PROPPATCH; nil falls
	// back to an in-memory store scoped to this Handler's lifetime.
	Props PropertyManager

	// Logger, if set, is called once per request with its outcome.
	Logger func(r *http.Request, status int, err error)
}

// New builds a fiber.Handler serving WebDAV over config's Router. Passing
// no Config returns a handler that rejects every request, matching the
// teacher's guard against a forgotten mount.
func New(config ...Config) fiber.Handler {
	if len(config) == 0 {
		log.Warn("webdav: configuration is nil - using empty handler")
		return func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).SendString("webdav: configuration required")
		}
	}
	c := config[0]
	if c.Router == nil {
		log.Warn("webdav: no Router configured - using empty handler")
		return func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).SendString("webdav: router required")
		}
	}

	locks := c.Locks
	if locks == nil {
		locks = NewLockManager(0, 0)
	}
	props := c.Props
	if props == nil {
		props = NewMemPropertyManager()
	}

	w := &Handler{
		Prefix: c.Prefix,
		Router: c.Router,
		Locks:  locks,
		Props:  props,
		Logger: c.Logger,
	}
	handler := adaptor.HTTPHandler(w)
	prefix := c.Prefix
	return func(c *fiber.Ctx) error {
		c.Path(strings.TrimPrefix(c.Path(), prefix))
		return handler(c)
	}
}
