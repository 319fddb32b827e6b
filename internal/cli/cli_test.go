package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"releng-kit/internal/database"
	"releng-kit/internal/exitcodes"
	"releng-kit/internal/keypatch"
	"releng-kit/internal/rules"
	"releng-kit/internal/safety"
	"releng-kit/internal/shell"
)

// runCLI executes releng with an isolated HOME so no user config or history
// database is touched.
func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, &stdout, &stderr)
	t.Logf("stderr:\n%s", stderr.String())
	return code, stdout.String()
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func stagingTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"bin/app":          "app",
		"bin/app.pdb":      "symbols",
		"lib/core.so":      "core",
		"lib/debug/x.pdb":  "symbols",
		"docs/readme.txt":  "readme",
		"docs/api/ref.txt": "ref",
	})
	return root
}

func TestCleanPreserve(t *testing.T) {
	root := stagingTree(t)

	code, _ := runCLI(t, "clean", "--input-dir", root, "--preserve", "bin/app lib/*.so")
	require.Equal(t, exitcodes.Success, code)

	assert.FileExists(t, filepath.Join(root, "bin", "app"))
	assert.FileExists(t, filepath.Join(root, "lib", "core.so"))
	assert.NoFileExists(t, filepath.Join(root, "bin", "app.pdb"))
	assert.NoDirExists(t, filepath.Join(root, "lib", "debug"))
	assert.NoDirExists(t, filepath.Join(root, "docs"))
}

func TestCleanRemove(t *testing.T) {
	root := stagingTree(t)

	code, _ := runCLI(t, "clean", "--input-dir", root, "--remove", "**/*.pdb", "--remove", "docs/api/**")
	require.Equal(t, exitcodes.Success, code)

	assert.FileExists(t, filepath.Join(root, "bin", "app"))
	assert.FileExists(t, filepath.Join(root, "docs", "readme.txt"))
	assert.NoFileExists(t, filepath.Join(root, "bin", "app.pdb"))
	assert.NoDirExists(t, filepath.Join(root, "lib", "debug"))
	assert.NoDirExists(t, filepath.Join(root, "docs", "api"))
}

func TestCleanRestoresWorkingDirectory(t *testing.T) {
	before, err := os.Getwd()
	require.NoError(t, err)

	root := stagingTree(t)
	code, _ := runCLI(t, "clean", "--input-dir", root, "--remove", "**/*.pdb")
	require.Equal(t, exitcodes.Success, code)

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCleanExitCodes(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name string
		args func(root string) []string
		want int
	}{
		{
			name: "no rules",
			args: func(root string) []string { return []string{"clean", "--input-dir", root} },
			want: exitcodes.NoRules,
		},
		{
			name: "empty rule line",
			args: func(root string) []string { return []string{"clean", "--input-dir", root, "--remove", "  "} },
			want: exitcodes.NoRules,
		},
		{
			name: "both modes",
			args: func(root string) []string {
				return []string{"clean", "--input-dir", root, "--preserve", "bin/app", "--remove", "**/*.pdb"}
			},
			want: exitcodes.InvalidConfig,
		},
		{
			name: "missing input dir",
			args: func(string) []string { return []string{"clean", "--remove", "*.pdb"} },
			want: exitcodes.InvalidConfig,
		},
		{
			name: "nonexistent input dir",
			args: func(root string) []string {
				return []string{"clean", "--input-dir", filepath.Join(root, "nope"), "--remove", "*.pdb"}
			},
			want: exitcodes.InvalidConfig,
		},
		{
			name: "input dir is a file",
			args: func(string) []string { return []string{"clean", "--input-dir", file, "--remove", "*.pdb"} },
			want: exitcodes.InvalidConfig,
		},
		{
			name: "bad pattern",
			args: func(root string) []string { return []string{"clean", "--input-dir", root, "--remove", "[a-"} },
			want: exitcodes.InvalidConfig,
		},
		{
			name: "unexpected argument",
			args: func(root string) []string { return []string{"clean", "--input-dir", root, "--remove", "*.pdb", "extra"} },
			want: exitcodes.InvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := stagingTree(t)
			code, _ := runCLI(t, tt.args(root)...)
			assert.Equal(t, tt.want, code)

			// Nothing may change on a rejected invocation
			assert.FileExists(t, filepath.Join(root, "bin", "app.pdb"))
			assert.FileExists(t, filepath.Join(root, "docs", "api", "ref.txt"))
		})
	}
}

func TestCleanRulesFile(t *testing.T) {
	root := stagingTree(t)
	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("remove:\n  - \"**/*.pdb\"\n  - docs/api/**\n"), 0o644))

	code, _ := runCLI(t, "clean", "--input-dir", root, "--rules-file", rulesPath)
	require.Equal(t, exitcodes.Success, code)

	assert.NoFileExists(t, filepath.Join(root, "bin", "app.pdb"))
	assert.NoDirExists(t, filepath.Join(root, "docs", "api"))
	assert.FileExists(t, filepath.Join(root, "docs", "readme.txt"))
}

func TestCleanRulesFileConflictsWithFlags(t *testing.T) {
	root := stagingTree(t)
	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte("preserve:\n  - bin/app\n"), 0o644))

	code, _ := runCLI(t, "clean", "--input-dir", root, "--rules-file", rulesPath, "--remove", "**/*.pdb")
	assert.Equal(t, exitcodes.InvalidConfig, code)
	assert.FileExists(t, filepath.Join(root, "bin", "app.pdb"))
}

func TestCleanDryRunRecordsHistory(t *testing.T) {
	root := stagingTree(t)
	dbPath := filepath.Join(t.TempDir(), "history.db")

	code, _ := runCLI(t, "clean", "--dry-run", "--history-db", dbPath, "--input-dir", root, "--remove", "**/*.pdb")
	require.Equal(t, exitcodes.Success, code)

	assert.FileExists(t, filepath.Join(root, "bin", "app.pdb"))
	assert.FileExists(t, filepath.Join(root, "lib", "debug", "x.pdb"))

	db, err := database.NewHistoryDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.GetByAction(database.ActionDryRun)
	require.NoError(t, err)

	var paths []string
	for _, r := range rows {
		paths = append(paths, r.Path)
	}
	assert.ElementsMatch(t, []string{"bin/app.pdb", "lib/debug/x.pdb", "lib/debug"}, paths)
}

func TestCleanHistoryRelativePath(t *testing.T) {
	root := stagingTree(t)
	dir := t.TempDir()

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	code, _ := runCLI(t, "clean", "--history-db", "history.db", "--input-dir", root, "--remove", "**/*.pdb")
	require.Equal(t, exitcodes.Success, code)

	assert.FileExists(t, filepath.Join(dir, "history.db"))
	assert.NoFileExists(t, filepath.Join(root, "history.db"))
}

func TestCleanUnusableHistoryDoesNotFail(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a/keep.txt": "keep",
		"a/drop.txt": "drop",
		"b/drop.txt": "drop",
	})
	homeFile := filepath.Join(t.TempDir(), "homefile")
	require.NoError(t, os.WriteFile(homeFile, nil, 0o644))

	var stdout, stderr bytes.Buffer
	t.Setenv("HOME", homeFile)
	code := Run(context.Background(), []string{"clean", "--input-dir", root, "--preserve", "a/keep.txt"}, &stdout, &stderr)
	require.Equal(t, exitcodes.Success, code, stderr.String())

	assert.FileExists(t, filepath.Join(root, "a", "keep.txt"))
	assert.NoFileExists(t, filepath.Join(root, "a", "drop.txt"))
	assert.NoDirExists(t, filepath.Join(root, "b"))
	assert.Contains(t, stderr.String(), "History disabled")
}

func TestCleanAbsoluteRuleRejected(t *testing.T) {
	root := stagingTree(t)

	code, _ := runCLI(t, "clean", "--input-dir", root, "--preserve", filepath.Join(root, "bin", "app"))
	assert.Equal(t, exitcodes.InvalidConfig, code)
	assert.FileExists(t, filepath.Join(root, "docs", "readme.txt"))
}

func TestFetchDuplicateTargets(t *testing.T) {
	code, _ := runCLI(t, "fetch", "--dest", t.TempDir(), "http://example.invalid/a/tools.7z", "http://example.invalid/b/tools.7z")
	assert.Equal(t, exitcodes.InvalidConfig, code)
}

func TestCleanWritesMetricsTextfile(t *testing.T) {
	root := stagingTree(t)
	prom := filepath.Join(t.TempDir(), "releng.prom")

	code, _ := runCLI(t, "clean", "--metrics-textfile", prom, "--input-dir", root, "--remove", "**/*.pdb")
	require.Equal(t, exitcodes.Success, code)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "releng_files_removed_total")
	assert.Contains(t, string(data), `releng_command_duration_seconds_count{command="clean"}`)
}

func TestInvalidConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "releng.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("logging:\n  level: loud\n"), 0o644))

	code, _ := runCLI(t, "--config", cfg, "clean", "--input-dir", t.TempDir(), "--remove", "*")
	assert.Equal(t, exitcodes.InvalidConfig, code)
}

func TestUnknownCommandAndFlag(t *testing.T) {
	code, _ := runCLI(t, "polish")
	assert.Equal(t, exitcodes.InvalidConfig, code)

	code, _ = runCLI(t, "clean", "--shine")
	assert.Equal(t, exitcodes.InvalidConfig, code)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload "+r.URL.Path)
	}))
	defer srv.Close()

	dest := t.TempDir()
	code, _ := runCLI(t, "fetch", "--dest", dest, srv.URL+"/a.7z", srv.URL+"/b.tgz")
	require.Equal(t, exitcodes.Success, code)

	data, err := os.ReadFile(filepath.Join(dest, "a.7z"))
	require.NoError(t, err)
	assert.Equal(t, "payload /a.7z", string(data))
	assert.FileExists(t, filepath.Join(dest, "b.tgz"))
}

func TestFetchUsage(t *testing.T) {
	code, _ := runCLI(t, "fetch", "http://example.invalid/a.7z")
	assert.Equal(t, exitcodes.InvalidConfig, code)

	code, _ = runCLI(t, "fetch", "--dest", t.TempDir(), "--sha256", "00", "http://example.invalid/a.7z", "http://example.invalid/b.7z")
	assert.Equal(t, exitcodes.InvalidConfig, code)
}

func TestExtractUnknownFormat(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "payload.rar")
	require.NoError(t, os.WriteFile(archive, []byte("rar"), 0o644))

	code, _ := runCLI(t, "extract", "--dest", t.TempDir(), archive)
	assert.Equal(t, exitcodes.InvalidConfig, code)
}

func TestExtractDryRun(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "payload.7z")
	require.NoError(t, os.WriteFile(archive, []byte("7z"), 0o644))

	code, _ := runCLI(t, "--dry-run", "extract", "--dest", t.TempDir(), archive)
	assert.Equal(t, exitcodes.Success, code)
}

func TestMergeCSV(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"linux.csv": "build,10\ntest,20\n",
		"mac.csv":   "build,12\ntest,25\n",
		"short.csv": "build,1\n",
	})
	out := filepath.Join(dir, "merged.csv")

	code, _ := runCLI(t, "merge-csv", "--output", out, filepath.Join(dir, "linux.csv"), filepath.Join(dir, "mac.csv"))
	require.Equal(t, exitcodes.Success, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "id,linux,mac\nbuild,10,12\ntest,20,25\n", string(data))

	bad := filepath.Join(dir, "bad.csv")
	code, _ = runCLI(t, "merge-csv", "--output", bad, filepath.Join(dir, "linux.csv"), filepath.Join(dir, "short.csv"))
	assert.Equal(t, exitcodes.RuntimeError, code)
	assert.NoFileExists(t, bad)
}

func TestMergeCSVDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.csv": "x,1\n"})
	out := filepath.Join(dir, "merged.csv")

	code, _ := runCLI(t, "--dry-run", "merge-csv", "-o", out, filepath.Join(dir, "a.csv"))
	require.Equal(t, exitcodes.Success, code)
	assert.NoFileExists(t, out)
}

func slotFile(t *testing.T) string {
	t.Helper()
	data := append([]byte("MZheader VERSION="), []byte("1.0.0")...)
	data = append(data, make([]byte, 16)...)
	data = append(data, []byte("trailer")...)
	p := filepath.Join(t.TempDir(), "setup.exe")
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestPatchKey(t *testing.T) {
	p := slotFile(t)
	before, err := os.ReadFile(p)
	require.NoError(t, err)

	code, _ := runCLI(t, "patch-key", "--file", p, "--key", "VERSION", "--value", "2.1.0-rc1")
	require.Equal(t, exitcodes.Success, code)

	after, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	assert.Contains(t, string(after), "VERSION=2.1.0-rc1\x00")
	assert.True(t, strings.HasSuffix(string(after), "trailer"))
}

func TestPatchKeyDryRunLeavesFile(t *testing.T) {
	p := slotFile(t)
	before, err := os.ReadFile(p)
	require.NoError(t, err)

	code, _ := runCLI(t, "--dry-run", "patch-key", "--file", p, "--key", "VERSION", "--value", "9.9.9")
	require.Equal(t, exitcodes.Success, code)

	after, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPatchKeyErrors(t *testing.T) {
	p := slotFile(t)

	code, _ := runCLI(t, "patch-key", "--file", p, "--key", "", "--value", "x")
	assert.Equal(t, exitcodes.InvalidConfig, code)

	code, _ = runCLI(t, "patch-key", "--file", p, "--key", "MISSING", "--value", "x")
	assert.Equal(t, exitcodes.RuntimeError, code)

	code, _ = runCLI(t, "patch-key", "--file", p, "--key", "VERSION", "--value", strings.Repeat("x", keypatch.MaxValueLen+1))
	assert.Equal(t, exitcodes.RuntimeError, code)
}

func TestImportEnvUnknownFormat(t *testing.T) {
	code, _ := runCLI(t, "import-env", "--format", "toml", "vcvars.bat")
	assert.Equal(t, exitcodes.InvalidConfig, code)
}

func TestSign(t *testing.T) {
	code, _ := runCLI(t, "sign", "--tool", "gpg", "--identity", "me", "setup.exe")
	assert.Equal(t, exitcodes.InvalidConfig, code)

	code, _ = runCLI(t, "sign", "--tool", "codesign", "setup.pkg")
	assert.Equal(t, exitcodes.InvalidConfig, code)

	code, _ = runCLI(t, "--dry-run", "sign", "--tool", "codesign", "--identity", "Developer ID", "setup.pkg")
	assert.Equal(t, exitcodes.Success, code)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitcodes.Success},
		{rules.ErrNoMode, exitcodes.NoRules},
		{rules.ErrConflictingModes, exitcodes.InvalidConfig},
		{fmt.Errorf("expand: %w", rules.ErrBadPattern), exitcodes.InvalidConfig},
		{fmt.Errorf("remove x: %w", safety.ErrOutsideRoot), exitcodes.SafetyViolation},
		{safety.ErrProtectedPath, exitcodes.SafetyViolation},
		{usageError(errors.New("unknown flag")), exitcodes.InvalidConfig},
		{fmt.Errorf("tar: %w", shell.ErrTimeout), exitcodes.RuntimeError},
		{os.ErrPermission, exitcodes.RuntimeError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

func TestRootFlagsBindToConfigKeys(t *testing.T) {
	a := &app{v: viper.New()}
	root := newRootCommand(a)

	require.NoError(t, root.PersistentFlags().Parse([]string{
		"--log-level", "debug",
		"--log-file", "/tmp/releng.log",
		"--history-db", "/tmp/history.db",
		"--metrics-textfile", "/tmp/releng.prom",
	}))

	assert.Equal(t, "debug", a.v.GetString("logging.level"))
	assert.Equal(t, "/tmp/releng.log", a.v.GetString("logging.file"))
	assert.Equal(t, "/tmp/history.db", a.v.GetString("history.path"))
	assert.Equal(t, "/tmp/releng.prom", a.v.GetString("metrics.textfile"))
}
