// Package resolver runs user-provided Lua scripts that map DOIs to direct
// PDF URLs. Scripts are stored in the database and can be added, updated
// and toggled at runtime without rebuilding the service.
//
// A script must define a global function
//
//	function resolve(doi) ... end
//
// returning the PDF URL for the DOI, or an empty string when the source
// does not carry the document. Scripts have the Lua standard libraries and
// the goluago modules available, plus a `sciproxy` global library for HTTP
// access and logging.
package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Shopify/go-lua"
	"github.com/Shopify/goluago"

	"github.com/sciproxy/sciproxy/domain"
	"github.com/sciproxy/sciproxy/downloader"
)

// LogWriter is the subset of the service the Lua library needs for
// logging. Scripts log through it so their output lands in the same store
// as the service's own logs.
type LogWriter interface {
	WriteLog(level string, message string, options ...func(log *domain.Log) error) error
}

// Runtime wraps a Lua state loaded with a single resolver script. The
// state is not safe for concurrent use, so every call into it holds Mu.
type Runtime struct {
	Mu       sync.Mutex
	LuaState *lua.State
	Data     *domain.Resolver

	client *http.Client
	logs   LogWriter
}

// NewRuntime creates a Lua state, registers the sciproxy library and loads
// the resolver's script. The script must define a global resolve function.
func NewRuntime(data *domain.Resolver, client *http.Client, logs LogWriter) (*Runtime, error) {
	if client == nil {
		client = http.DefaultClient
	}

	runtime := &Runtime{
		LuaState: lua.NewState(),
		Data:     data,
		client:   client,
		logs:     logs,
	}

	lua.OpenLibraries(runtime.LuaState)
	goluago.Open(runtime.LuaState)
	registerSciproxyLibrary(runtime)

	if err := lua.DoString(runtime.LuaState, data.LuaContent); err != nil {
		return nil, fmt.Errorf("loading resolver %s : %w", data.Name, err)
	}

	runtime.LuaState.Global("resolve")
	isFunction := runtime.LuaState.IsFunction(-1)
	runtime.LuaState.Pop(1)
	if !isFunction {
		return nil, fmt.Errorf("resolver %s does not define a resolve function", data.Name)
	}

	return runtime, nil
}

// Resolve calls the script's resolve function with the DOI and returns the
// PDF URL it produced. An empty string means the source does not carry the
// document.
func (r *Runtime) Resolve(doi string) (string, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	r.LuaState.Global("resolve")
	r.LuaState.PushString(doi)
	if err := r.LuaState.ProtectedCall(1, 1, 0); err != nil {
		// A failed ProtectedCall leaves the error value on the stack.
		r.LuaState.Pop(1)
		return "", fmt.Errorf("resolver %s failed for doi %s : %w", r.Data.Name, doi, err)
	}
	defer r.LuaState.Pop(1)

	if r.LuaState.IsNil(-1) {
		return "", nil
	}

	pdfURL, ok := r.LuaState.ToString(-1)
	if !ok {
		return "", fmt.Errorf("resolver %s returned a non-string value for doi %s", r.Data.Name, doi)
	}
	return pdfURL, nil
}

// registerSciproxyLibrary registers the `sciproxy` global library into the
// runtime's Lua state.
func registerSciproxyLibrary(runtime *Runtime) {
	funcs := []lua.RegistryFunction{
		// get fetches a URL and returns the response body and status code.
		//
		// @param url string The URL to fetch.
		// @return string, number The response body and the status code.
		{Name: "get", Function: func(l *lua.State) int {
			target := lua.CheckString(l, 2)

			req, err := http.NewRequest(http.MethodGet, target, nil)
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("building request : %s", err.Error()))
				return 0
			}

			res, err := runtime.client.Do(req)
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("fetching %s : %s", target, err.Error()))
				return 0
			}
			defer res.Body.Close()

			body, err := io.ReadAll(res.Body)
			if err != nil {
				lua.Errorf(l, fmt.Sprintf("reading response from %s : %s", target, err.Error()))
				return 0
			}

			l.PushString(string(body))
			l.PushInteger(res.StatusCode)
			return 2
		}},
		// log writes a message to the service's log.
		//
		// @param message string The message to log.
		// @param level string (optional) The log level. Defaults to "INFO".
		{Name: "log", Function: func(l *lua.State) int {
			message := lua.CheckString(l, 2)
			level := lua.OptString(l, 3, "INFO")
			if runtime.logs == nil {
				return 0
			}
			if err := runtime.logs.WriteLog(level, message, domain.LogWithContext(map[string]any{"resolver": runtime.Data.Name})); err != nil {
				lua.Errorf(l, fmt.Sprintf("writing log : %s", err.Error()))
				return 0
			}
			return 0
		}},
	}

	lua.NewLibrary(runtime.LuaState, funcs)
	runtime.LuaState.SetGlobal("sciproxy")
}

// Downloader adapts a Runtime to the downloader interface so scripted
// sources slot into the fetch pipeline next to the built-in ones.
type Downloader struct {
	runtime *Runtime
	client  *http.Client
}

var _ downloader.Downloader = (*Downloader)(nil)

// NewDownloader returns a downloader backed by the given runtime. The
// client is used to fetch the PDF the script resolves to.
func NewDownloader(runtime *Runtime, client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{
		runtime: runtime,
		client:  client,
	}
}

// Name implements the downloader interface.
func (d *Downloader) Name() string {
	return d.runtime.Data.Name
}

// FetchPDF implements the downloader interface. It asks the script for the
// PDF URL and downloads it.
func (d *Downloader) FetchPDF(ctx context.Context, doi string) (io.ReadCloser, error) {
	pdfURL, err := d.runtime.Resolve(doi)
	if err != nil {
		return nil, err
	}
	if pdfURL == "" {
		return nil, downloader.ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building pdf request %s : %w", pdfURL, err)
	}

	res, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching pdf from %s : %w", pdfURL, err)
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, downloader.ErrUnavailable
	}

	return res.Body, nil
}
