// Package executors implements the built-in task types over plain HTTP.
//
// LAUNCH_BROWSER, NAVIGATE_URL and PAGE_TO_HTML drive a static page
// handle: documents are fetched with the execution's user agent, proxy
// and session cookies, honouring robots.txt when the workflow asks for
// it. Interactive tasks (FILL_INPUT, CLICK_ELEMENT, WAIT_FOR_ELEMENT)
// need a real browser and are registered by the embedding application.
//
//	reg := orchestrator.NewRegistry()
//	err := executors.Register(reg, executors.Deps{HTTP: hc, LLM: model, Log: log})
package executors
