package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testherd/testherd/internal/core"
)

func TestParseGoTestJSON(t *testing.T) {
	stream := strings.Join([]string{
		`{"Action":"run","Package":"example.com/m/pkg","Test":"TestAdd"}`,
		`{"Action":"output","Package":"example.com/m/pkg","Test":"TestAdd","Output":"=== RUN   TestAdd\n"}`,
		`{"Action":"pass","Package":"example.com/m/pkg","Test":"TestAdd","Elapsed":0.01}`,
		`{"Action":"run","Package":"example.com/m/pkg","Test":"TestDivide"}`,
		`{"Action":"output","Package":"example.com/m/pkg","Test":"TestDivide","Output":"    math_test.go:42: expected 2, got 3\n"}`,
		`{"Action":"fail","Package":"example.com/m/pkg","Test":"TestDivide","Elapsed":0.02}`,
		`{"Action":"run","Package":"example.com/m/pkg","Test":"TestSlow"}`,
		`{"Action":"skip","Package":"example.com/m/pkg","Test":"TestSlow","Elapsed":0}`,
		`{"Action":"fail","Package":"example.com/m/pkg","Elapsed":0.05}`,
	}, "\n")

	results, err := parseGoTestJSON(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, results, 3)

	byName := make(map[string]core.Result)
	for _, r := range results {
		byName[r.TestName] = r
	}

	assert.Equal(t, core.ResultPass, byName["TestAdd"].Kind)
	assert.Empty(t, byName["TestAdd"].Reasons)

	require.Equal(t, core.ResultFail, byName["TestDivide"].Kind)
	require.NotEmpty(t, byName["TestDivide"].Reasons)
	assert.Contains(t, byName["TestDivide"].Reasons[0], "expected 2, got 3")

	assert.Equal(t, core.ResultPass, byName["TestSlow"].Kind)
}

func TestParseGoTestJSONKeepsFullSubtestNames(t *testing.T) {
	stream := strings.Join([]string{
		`{"Action":"run","Package":"example.com/m/pkg","Test":"TestParse/empty_input"}`,
		`{"Action":"pass","Package":"example.com/m/pkg","Test":"TestParse/empty_input","Elapsed":0}`,
		`{"Action":"run","Package":"example.com/m/other","Test":"TestRender/empty_input"}`,
		`{"Action":"output","Package":"example.com/m/other","Test":"TestRender/empty_input","Output":"    render_test.go:9: want header\n"}`,
		`{"Action":"fail","Package":"example.com/m/other","Test":"TestRender/empty_input","Elapsed":0}`,
	}, "\n")

	results, err := parseGoTestJSON(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Same leaf name under different parents must stay distinguishable.
	assert.Equal(t, "TestParse/empty_input", results[0].TestName)
	assert.Equal(t, core.ResultPass, results[0].Kind)
	assert.Equal(t, "TestRender/empty_input", results[1].TestName)
	assert.Equal(t, core.ResultFail, results[1].Kind)
}

func TestParseGoTestJSONBuildFailure(t *testing.T) {
	stream := strings.Join([]string{
		`{"Action":"output","Package":"example.com/m/broken","Output":"# example.com/m/broken\n"}`,
		`{"Action":"output","Package":"example.com/m/broken","Output":"./broken.go:7:2: undefined: missingFunc\n"}`,
		`{"Action":"fail","Package":"example.com/m/broken","Elapsed":0}`,
	}, "\n")

	results, err := parseGoTestJSON(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "example.com/m/broken", results[0].TestName)
	assert.Equal(t, core.ResultError, results[0].Kind)
	require.NotEmpty(t, results[0].Reasons)
	assert.Contains(t, strings.Join(results[0].Reasons, "\n"), "undefined: missingFunc")
}

func TestParseGoTestJSONUnfinishedTest(t *testing.T) {
	stream := strings.Join([]string{
		`{"Action":"run","Package":"example.com/m/pkg","Test":"TestHang"}`,
		`{"Action":"output","Package":"example.com/m/pkg","Test":"TestHang","Output":"panic: runtime error\n"}`,
	}, "\n")

	results, err := parseGoTestJSON(strings.NewReader(stream))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, core.ResultError, results[0].Kind)
	assert.Equal(t, "test never finished", results[0].Reasons[0])
}

func TestParseGoTestJSONMalformedEvent(t *testing.T) {
	_, err := parseGoTestJSON(strings.NewReader(`{"Action":`))
	assert.Error(t, err)
}

func TestParseGoTestJSONEmptyStream(t *testing.T) {
	results, err := parseGoTestJSON(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParseExitCode(t *testing.T) {
	t.Run("clean exit passes the suite", func(t *testing.T) {
		results := parseExitCode([]string{"all good"}, nil)
		require.Len(t, results, 1)
		assert.Equal(t, core.ResultPass, results[0].Kind)
	})

	t.Run("nonzero exit fails the suite with output", func(t *testing.T) {
		results := parseExitCode([]string{"1 test failed"}, assert.AnError)
		require.Len(t, results, 1)
		assert.Equal(t, core.ResultFail, results[0].Kind)
		assert.Contains(t, results[0].Reasons, "1 test failed")
	})
}
