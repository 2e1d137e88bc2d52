// Package browser provides the page automation session the presence machine
// drives.
//
// A Session models exactly one physical page: navigation, element lookup,
// visibility probing, clicking and timed waits. The presence machine is its
// only caller. Driver.SetCookies may run alongside it.
//
// # Drivers
//
// Two drivers implement Session:
//
//   - playwright (default): playwright-go with a Chromium browser, context and page
//   - rod: go-rod over the Chrome DevTools Protocol
//
// Both are created through Open, which performs the startup sequence
// (driver install, browser launch, page creation). Cookies are injected with
// SetCookies before the first navigation.
//
// # Selectors
//
// Selectors are structured rather than driver strings so both drivers can
// honour the same lookup:
//
//	browser.Selector{CSS: `button[aria-label="endCall"]`, HasText: "Leave the spaces"}
//	browser.Selector{Text: "Host has not started the meeting"}
//
// A selector that matches nothing is simply not visible; probe errors are
// reserved for driver failures.
package browser
