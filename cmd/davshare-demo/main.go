// Command davshare-demo boots an in-process server mounting a
// LocalFileSystem share alongside a RepositoryProvider share, to exercise
// the Router's multi-share dispatch without any configuration file.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	webdav "github.com/tryanks/davshare"
)

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	fsShare := webdav.NewLocalFileSystem(root, false)
	repoShare := webdav.NewRepositoryProvider(false)

	router := webdav.NewRouter(nil,
		webdav.Share{Name: "/files", Provider: fsShare},
		webdav.Share{Name: "/scratch", Provider: repoShare},
	)
	router.SetRoot(webdav.NewRootProvider(router))

	app := fiber.New(fiber.Config{
		RequestMethods: webdav.ExtendedMethods,
	})
	app.Use("/", webdav.New(webdav.Config{
		Router: router,
		Locks:  webdav.NewLockManager(0, 0),
		Props:  webdav.NewMemPropertyManager(),
		Logger: func(r *http.Request, status int, err error) {
			fmt.Println("\t", r.Method, r.URL.Path, status)
			if err != nil {
				fmt.Println("\t\tERROR:", err)
			}
		},
	}))

	log.Info("davshare-demo serving /files -> ", root, " and /scratch -> in-memory, on :3000")
	if err := app.Listen(":3000"); err != nil {
		log.Fatal(err)
	}
}
