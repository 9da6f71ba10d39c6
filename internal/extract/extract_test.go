package extract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompact(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(raw, &v))
	out, err := json.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func TestExtractFencedBlock(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"competitors\": []}\n```"
	got, err := Extract(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"competitors": []}`, string(got))
}

func TestExtractEquivalentToCleanParse(t *testing.T) {
	clean := `{"name":"Acme","competitors":[{"name":"RivalCo","strengths":["pricing"]}]}`
	wrappers := []string{
		clean,
		"```json\n" + clean + "\n```",
		"```\n" + clean + "\n```",
		"Here is the analysis you asked for:\n\n" + clean + "\n\nLet me know if you need more.",
		"Of course! " + clean,
	}
	for _, raw := range wrappers {
		got, err := Extract(raw)
		require.NoError(t, err, "input: %q", raw)
		assert.Equal(t, mustCompact(t, json.RawMessage(clean)), mustCompact(t, got))
	}
}

func TestExtractRepairsTrailingComma(t *testing.T) {
	got, err := Extract(`{"a": 1,}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(got))
}

func TestExtractRepairsNestedTrailingCommas(t *testing.T) {
	got, err := Extract(`{"items": ["a", "b",], "n": 2,}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items": ["a", "b"], "n": 2}`, string(got))
}

func TestExtractRepairsBareKeys(t *testing.T) {
	got, err := Extract(`{name: "Acme", industry: "robotics"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Acme", "industry": "robotics"}`, string(got))
}

func TestExtractRepairsAdjacentStrings(t *testing.T) {
	got, err := Extract(`{"a": "one" "b": "two"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": "one", "b": "two"}`, string(got))
}

func TestExtractRepairIsStringAware(t *testing.T) {
	// Commas, braces, and colons inside quoted strings must survive repair.
	got, err := Extract(`{"note": "a, b, c: {see},", "tail": [1, 2,],}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"note": "a, b, c: {see},", "tail": [1, 2]}`, string(got))
}

func TestExtractTruncatedBraceFails(t *testing.T) {
	_, err := Extract(`{"a": 1, "b": {"c": 2}`)
	require.Error(t, err)
	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	assert.Contains(t, xerr.Raw, `"a": 1`)
}

func TestExtractRejectsProseOnly(t *testing.T) {
	_, err := Extract("I could not produce the requested data.")
	require.Error(t, err)
	var xerr *Error
	assert.ErrorAs(t, err, &xerr)
}

func TestExtractRejectsEmpty(t *testing.T) {
	_, err := Extract("")
	assert.Error(t, err)
	_, err = Extract("   \n\t ")
	assert.Error(t, err)
}

func TestExtractPrefersFenceOverStraySpans(t *testing.T) {
	raw := "the { symbol opens a block\n```json\n{\"picked\": true}\n```\nand } closes it"
	got, err := Extract(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"picked": true}`, string(got))
}

func TestDecodeInto(t *testing.T) {
	var v struct {
		Competitors []struct {
			Name string `json:"name"`
		} `json:"competitors"`
	}
	err := DecodeInto("```json\n{\"competitors\": [{\"name\": \"RivalCo\"}]}\n```", &v)
	require.NoError(t, err)
	require.Len(t, v.Competitors, 1)
	assert.Equal(t, "RivalCo", v.Competitors[0].Name)
}

func TestDecodeIntoStructureMismatch(t *testing.T) {
	var v struct {
		Competitors []string `json:"competitors"`
	}
	err := DecodeInto(`{"competitors": [{"name": "RivalCo"}]}`, &v)
	require.Error(t, err)
	var xerr *Error
	assert.ErrorAs(t, err, &xerr)
}

func TestPolicyRetriesUntilParseable(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	got, err := p.Do(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "not json at all", nil
		}
		return `{"ok": true}`, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.JSONEq(t, `{"ok": true}`, string(got))
}

func TestPolicyExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	calls := 0
	_, err := p.Do(context.Background(), func(context.Context) (string, error) {
		calls++
		return "", errors.New("upstream unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestPolicyHonorsContext(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Do(ctx, func(context.Context) (string, error) {
		return "junk", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicyDoInto(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	var v struct {
		N int `json:"n"`
	}
	calls := 0
	err := p.DoInto(context.Background(), &v, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "nope", nil
		}
		return `{"n": 7}`, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v.N)
}
