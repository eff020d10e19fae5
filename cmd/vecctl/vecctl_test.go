package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleVEC = `<VEC><Part id="p1">x</Part><Part id="p2"/></VEC>`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConvertCompactJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "harness.vec", sampleVEC)

	out, err := run(t, "", "convert", "--indent", "0", path)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Part":[{"@attributes":{"id":"p1"},"#text":"x"},{"@attributes":{"id":"p2"}}]}`+"\n",
		out)
}

func TestConvertIndentedFromStdin(t *testing.T) {
	out, err := run(t, `<r k="v"/>`, "convert", "-")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"@attributes\": {\n    \"k\": \"v\"\n  }\n}\n", out)
}

func TestConvertYAMLToFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "harness.vec", `<r><b>hi</b><a/></r>`)
	target := filepath.Join(dir, "out.yaml")

	out, err := run(t, "", "convert", "-f", "yaml", "-o", target, path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "b:\n  '#text': hi\na: {}\n", string(data))
}

func TestConvertErrors(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.vec", `<VEC><Part></VEC>`)

	_, err := run(t, "", "convert", broken)
	assert.ErrorContains(t, err, "failed to convert")

	_, err = run(t, "", "convert", "-f", "toml", broken)
	assert.ErrorContains(t, err, `unsupported format "toml"`)

	_, err = run(t, "", "convert", filepath.Join(dir, "missing.vec"))
	assert.ErrorContains(t, err, "failed to read")
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.vec", sampleVEC)
	wrongType := writeFile(t, dir, "notes.txt", sampleVEC)
	broken := writeFile(t, dir, "broken.vec", "not xml at all <")

	out, err := run(t, "", "check", "-p", "2", good, wrongType, broken)
	require.Error(t, err)
	assert.Equal(t, "2 of 3 files rejected", err.Error())

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "OK   "+good+" (48 B)", lines[0])
	assert.Equal(t, "FAIL "+wrongType+": File type not supported. Please upload a .vec file.", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "FAIL "+broken+": "), lines[2])
}

func TestCheckAllAccepted(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.vec", sampleVEC)
	b := writeFile(t, dir, "b.VEC", `<VEC/>`)

	out, err := run(t, "", "check", "-p", "0", a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "OK   "))
}
