package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mediaflow/internal/models"
)

func TestResolveSubstitutesReferences(t *testing.T) {
	outputs := map[string]models.Output{
		"img":   {URL: "https://cdn.test/a.png"},
		"words": {Text: "hello there"},
	}
	got, err := Resolve(map[string]models.Value{
		"prompt":      models.Lit("zoom in"),
		"start_image": models.Ref("img"),
		"text":        models.Ref("words"),
		"duration":    models.Lit(5.0),
	}, outputs)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"prompt":      "zoom in",
		"start_image": "https://cdn.test/a.png",
		"text":        "hello there",
		"duration":    5.0,
	}, got)
}

func TestResolveExplicitField(t *testing.T) {
	outputs := map[string]models.Output{"doc": {URL: "https://cdn.test/d.pdf", Text: "body"}}

	got, err := Resolve(map[string]models.Value{"context": models.RefTo("doc", models.FieldText)}, outputs)
	require.NoError(t, err)
	assert.Equal(t, "body", got["context"])

	_, err = Resolve(map[string]models.Value{"image": models.RefTo("doc2", models.FieldURL)}, outputs)
	var ure *UnresolvedReferenceError
	require.ErrorAs(t, err, &ure)
	assert.Equal(t, "doc2", ure.StepID)
}

func TestResolveEmptyOutputIsUnresolved(t *testing.T) {
	_, err := Resolve(map[string]models.Value{"image": models.Ref("a")}, map[string]models.Output{"a": {}})
	assert.ErrorAs(t, err, new(*UnresolvedReferenceError))
}

func TestResolveListFields(t *testing.T) {
	outputs := map[string]models.Output{"a": {URL: "https://cdn.test/a.png"}}
	got, err := Resolve(map[string]models.Value{
		"reference_images": models.ListOf(models.Ref("a"), models.Lit("https://x.test/1.png, https://x.test/2.png")),
		"image_urls":       models.Lit("https://x.test/3.png\n\n data:image/png;base64,AAA,BBB \n"),
		"audio_urls":       models.Lit(nil),
	}, outputs)

	require.NoError(t, err)
	assert.Equal(t, []any{"https://cdn.test/a.png", "https://x.test/1.png", "https://x.test/2.png"}, got["reference_images"])
	assert.Equal(t, []any{"https://x.test/3.png", "data:image/png;base64,AAA,BBB"}, got["image_urls"])
	assert.Equal(t, []any{}, got["audio_urls"])
}

func TestResolveNonListFieldKeepsCommas(t *testing.T) {
	got, err := Resolve(map[string]models.Value{"prompt": models.Lit("red, green, blue")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "red, green, blue", got["prompt"])
}
