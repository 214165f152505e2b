package pageflow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/pageflow"
	"golang.org/x/net/html"
)

// Example walks a prerendered home page and a navigation to another page.
func Example() {
	doc, err := pageflow.Parse(`<html data-prerender="true"><head><title>Home</title></head><body>home</body></html>`)
	if err != nil {
		log.Fatal(err)
	}
	pages := map[string]string{
		"/about": `<html><head><title>About</title></head><body>about</body></html>`,
	}
	router := func(_ context.Context, st *pageflow.State) (*html.Node, error) {
		return pageflow.Parse(pages[st.Pathname])
	}

	ctrl := pageflow.New(doc, pageflow.WithRouter(router))
	for _, stage := range []pageflow.Stage{
		pageflow.StageInit, pageflow.StageReady, pageflow.StageBuild, pageflow.StagePatch,
		pageflow.StageSetup, pageflow.StageHash, pageflow.StageClose,
	} {
		ctrl.OnEvery(stage, pageflow.ListenerFunc(func(_ context.Context, st *pageflow.State) error {
			fmt.Println(st.Stage(), st.Href())
			return nil
		}))
	}

	ctx := context.Background()
	if _, err := ctrl.Start(ctx, "/", nil); err != nil {
		log.Fatal(err)
	}
	if _, err := ctrl.Push(ctx, "/about#team", nil); err != nil {
		log.Fatal(err)
	}

	// Output:
	// init /
	// ready /
	// setup /
	// init /about#team
	// ready /about#team
	// build /about#team
	// patch /about#team
	// close /
	// setup /about#team
	// hash /about#team
}
