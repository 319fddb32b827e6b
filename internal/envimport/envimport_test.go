package envimport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"releng-kit/internal/shell"
)

const sampleOutput = "**********************************************************************\r\n" +
	"** Visual Studio 2019 Developer Command Prompt v16.11\r\n" +
	"INCLUDE=should-not-be-seen\r\n" +
	Marker + " \r\n" +
	"=C:=C:\\build\r\n" +
	"INCLUDE=C:\\VS\\include;C:\\SDK\\include\r\n" +
	"LIB=C:\\VS\\lib\r\n" +
	"Path=C:\\VS\\bin;C:\\Windows\r\n" +
	"VSCMD_ARG_TGT_ARCH=x64\r\n" +
	"EMPTY=\r\n" +
	"garbage line\r\n"

func TestParse(t *testing.T) {
	env, err := Parse([]byte(sampleOutput))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"INCLUDE":            `C:\VS\include;C:\SDK\include`,
		"LIB":                `C:\VS\lib`,
		"Path":               `C:\VS\bin;C:\Windows`,
		"VSCMD_ARG_TGT_ARCH": "x64",
		"EMPTY":              "",
	}, env)
}

func TestParseValueWithEquals(t *testing.T) {
	env, err := Parse([]byte(Marker + "\nOPTS=a=b=c\n"))
	require.NoError(t, err)
	assert.Equal(t, "a=b=c", env["OPTS"])
}

func TestParseDuplicatePath(t *testing.T) {
	for _, out := range []string{
		Marker + "\nPath=a\nPath=b\n",
		Marker + "\nPath=a\nPATH=b\n",
	} {
		_, err := Parse([]byte(out))
		assert.ErrorIs(t, err, ErrDuplicatePath)
	}
}

func TestParseMissingMarker(t *testing.T) {
	_, err := Parse([]byte("Path=a\n"))
	assert.ErrorIs(t, err, ErrMarkerMissing)
}

func TestCommand(t *testing.T) {
	i := &Importer{}
	cmd := i.Command(`C:\Program Files\VS\vcvarsall.bat`, []string{"x64", "10.0.19041.0"})

	assert.Equal(t, "cmd", cmd.Name)
	assert.Equal(t, []string{
		"/c",
		`call "C:\Program Files\VS\vcvarsall.bat" x64 10.0.19041.0 && echo ` + Marker + " && set",
	}, cmd.Args)

	i.Shell = "cmd.exe"
	assert.Equal(t, "cmd.exe", i.Command("env.bat", nil).Name)
	assert.Equal(t, "call env.bat && echo "+Marker+" && set", i.Command("env.bat", nil).Args[1])
}

func TestImport(t *testing.T) {
	runner := &shell.FakeRunner{Outputs: map[string][]byte{"cmd": []byte(sampleOutput)}}
	i := &Importer{Runner: runner, Logger: zerolog.Nop()}

	env, err := i.Import(context.Background(), "vcvarsall.bat", []string{"x64"})
	require.NoError(t, err)
	assert.Equal(t, "x64", env["VSCMD_ARG_TGT_ARCH"])
	require.Len(t, runner.Commands, 1)
}

func TestImportToolFailure(t *testing.T) {
	boom := errors.New("exit status 1")
	runner := &shell.FakeRunner{Fail: map[string]error{"cmd": boom}}
	i := &Importer{Runner: runner, Logger: zerolog.Nop()}

	_, err := i.Import(context.Background(), "missing.bat", nil)
	assert.ErrorIs(t, err, boom)
}

func TestChanged(t *testing.T) {
	env := map[string]string{"A": "1", "B": "2", "C": "3"}
	base := map[string]string{"A": "1", "B": "old"}
	assert.Equal(t, map[string]string{"B": "2", "C": "3"}, Changed(env, base))
}

func TestWrite(t *testing.T) {
	env := map[string]string{"B": "it's", "A": `C:\x`}

	var sh bytes.Buffer
	require.NoError(t, Write(&sh, env, FormatShell))
	assert.Equal(t, "export A='C:\\x'\nexport B='it'\\''s'\n", sh.String())

	var js bytes.Buffer
	require.NoError(t, Write(&js, env, FormatJSON))
	var fromJSON map[string]string
	require.NoError(t, json.Unmarshal(js.Bytes(), &fromJSON))
	assert.Equal(t, env, fromJSON)

	var ym bytes.Buffer
	require.NoError(t, Write(&ym, env, FormatYAML))
	var fromYAML map[string]string
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &fromYAML))
	assert.Equal(t, env, fromYAML)

	assert.ErrorIs(t, Write(&bytes.Buffer{}, env, "xml"), ErrUnknownFormat)
}
