package weave_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveql/weave"
	"github.com/weaveql/weave/errors"
	"github.com/weaveql/weave/execution"
	"github.com/weaveql/weave/parser"
	"github.com/weaveql/weave/store"
)

func demoEngine(t *testing.T) *weave.Engine {
	t.Helper()
	registry, err := store.Default().Registry()
	require.NoError(t, err)
	engine, err := weave.New(registry, "collections")
	require.NoError(t, err)
	return engine
}

func TestScenarioCollectionItems(t *testing.T) {
	engine := demoEngine(t)

	resp := engine.Do(weave.Params{Query: `{ collection { items { id name } } }`})
	payload, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Equal(t,
		`{"data":{"collection":{"items":[{"id":"A","name":"foo"},{"id":"B","name":"bar"}]}}}`,
		string(payload))
}

func TestScenarioCollectionByName(t *testing.T) {
	engine := demoEngine(t)

	resp := engine.Do(weave.Params{Query: `{ collectionByName(name: "BC") { items { id name } } }`})
	payload, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Equal(t,
		`{"data":{"collectionByName":{"items":[{"id":"B","name":"bar"},{"id":"C","name":"baz"}]}}}`,
		string(payload))
}

func TestScenarioNoMatchFailsNotEmpty(t *testing.T) {
	engine := demoEngine(t)

	resp := engine.Do(weave.Params{Query: `{ collectionByName(name: "ZZ") { items { id name } } }`})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, errors.KindUniqueness, resp.Errors[0].Kind)
	assert.Nil(t, resp.Data)

	payload, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"errors"`)
	assert.NotContains(t, string(payload), `"data"`)
}

func TestDelegationTransparency(t *testing.T) {
	engine := demoEngine(t)

	composed := engine.Do(weave.Params{Query: `{ items { id name } }`})
	require.Empty(t, composed.Errors)
	composedJSON, err := json.Marshal(composed.Data)
	require.NoError(t, err)

	// The same selection executed directly against the items mapping must
	// produce the identical payload under the delegated field.
	registry, err := store.Default().Registry()
	require.NoError(t, err)
	items, err := registry.Mapping("items")
	require.NoError(t, err)

	selection, err := parser.ParseQuery(parser.Params{Query: `{ id name }`})
	require.NoError(t, err)
	elaborated, err := execution.Elaborate(items, selection)
	require.NoError(t, err)
	direct, errs := execution.NewExecutor(registry).Execute(context.Background(), items, elaborated)
	require.Equal(t, errors.MultiError(nil), errs)
	directJSON, err := json.Marshal(direct)
	require.NoError(t, err)

	assert.Equal(t, `{"items":`+string(directJSON)+`}`, string(composedJSON))
}

func TestRepeatedExecutionIsIdempotent(t *testing.T) {
	engine := demoEngine(t)
	const query = `{ collectionByName(name: "AB") { name itemIds items { id } } }`

	first, err := json.Marshal(engine.Do(weave.Params{Query: query}))
	require.NoError(t, err)
	second, err := json.Marshal(engine.Do(weave.Params{Query: query}))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestVariablesNarrowBeforeJoin(t *testing.T) {
	engine := demoEngine(t)

	resp := engine.Do(weave.Params{
		Query:     `query ($name: String!) { collectionByName(name: $name) { items { id } } }`,
		Variables: map[string]interface{}{"name": "BC"},
	})
	payload, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Equal(t,
		`{"data":{"collectionByName":{"items":[{"id":"B"},{"id":"C"}]}}}`,
		string(payload))
}

func TestHTTPHandlerEnvelope(t *testing.T) {
	engine := demoEngine(t)
	server := httptest.NewServer(weave.HTTPHandler(engine))
	defer server.Close()

	body := `{"query":"{ collection { items { id name } } }"}`
	resp, err := http.Post(server.URL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t,
		`{"data":{"collection":{"items":[{"id":"A","name":"foo"},{"id":"B","name":"bar"}]}}}`,
		string(payload))
}

func TestHTTPHandlerRejectsGet(t *testing.T) {
	engine := demoEngine(t)
	server := httptest.NewServer(weave.HTTPHandler(engine))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
