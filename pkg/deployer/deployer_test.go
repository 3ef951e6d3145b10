package deployer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webfleet-sh/webfleet/pkg/config"
	"github.com/webfleet-sh/webfleet/pkg/runner"
	"github.com/webfleet-sh/webfleet/pkg/validator"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNewKnowsEveryType(t *testing.T) {
	fake := runner.NewFake()
	for _, typ := range validator.AppTypes {
		d, err := New(typ, fake)
		require.NoError(t, err)
		assert.Equal(t, typ, d.Type())
	}
	_, err := New("rails", fake)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestNeedsService(t *testing.T) {
	assert.True(t, NeedsService(validator.TypeNextJS))
	assert.True(t, NeedsService(validator.TypeNodeJS))
	assert.True(t, NeedsService(validator.TypeFastAPI))
	assert.False(t, NeedsService(validator.TypeStatic))
}

func TestDetectPrecedence(t *testing.T) {
	t.Run("next config wins", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "next.config.js", "module.exports = {}")
		writeFile(t, dir, "main.py", "from fastapi import FastAPI")
		assert.Equal(t, validator.TypeNextJS, Detect(dir))
	})

	t.Run("fastapi main.py", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "main.py", "from fastapi import FastAPI\napp = FastAPI()")
		writeFile(t, dir, "package.json", `{"scripts":{"start":"node x"}}`)
		assert.Equal(t, validator.TypeFastAPI, Detect(dir))
	})

	t.Run("plain main.py is not fastapi", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "main.py", "print('hello')")
		assert.Equal(t, validator.TypeStatic, Detect(dir))
	})

	t.Run("package.json with next dep", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"dependencies":{"next":"14.0.0"}}`)
		assert.Equal(t, validator.TypeNextJS, Detect(dir))
	})

	t.Run("package.json with start script", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"scripts":{"start":"node server.js"}}`)
		assert.Equal(t, validator.TypeNodeJS, Detect(dir))
	})

	t.Run("package.json build-only is static", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"scripts":{"build":"vite build"}}`)
		assert.Equal(t, validator.TypeStatic, Detect(dir))
	})

	t.Run("package.json with neither defaults to nodejs", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"name":"x"}`)
		assert.Equal(t, validator.TypeNodeJS, Detect(dir))
	})

	t.Run("index.html", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "index.html", "<html></html>")
		assert.Equal(t, validator.TypeStatic, Detect(dir))
	})

	t.Run("empty dir falls back to static", func(t *testing.T) {
		assert.Equal(t, validator.TypeStatic, Detect(t.TempDir()))
	})
}

func TestNextJSValidateStructure(t *testing.T) {
	d := &NextJS{run: runner.NewFake()}

	dir := t.TempDir()
	assert.ErrorIs(t, d.ValidateStructure(App{Dir: dir}), ErrInvalidStructure)

	// next alone is not enough, react and a source directory are required
	writeFile(t, dir, "package.json", `{"dependencies":{"next":"14.0.0"}}`)
	assert.ErrorIs(t, d.ValidateStructure(App{Dir: dir}), ErrInvalidStructure)

	writeFile(t, dir, "package.json", `{"dependencies":{"next":"14.0.0","react":"18.2.0"}}`)
	assert.ErrorIs(t, d.ValidateStructure(App{Dir: dir}), ErrInvalidStructure)

	writeFile(t, dir, "app/page.tsx", "export default function Page() {}")
	assert.NoError(t, d.ValidateStructure(App{Dir: dir}))

	for _, src := range []string{"pages", "src"} {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"dependencies":{"next":"14.0.0","react":"18.2.0"}}`)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, src), 0o755))
		assert.NoError(t, d.ValidateStructure(App{Dir: dir}))
	}
}

func TestFastAPIValidateStructure(t *testing.T) {
	d := &FastAPI{run: runner.NewFake()}

	dir := t.TempDir()
	assert.ErrorIs(t, d.ValidateStructure(App{Dir: dir}), ErrInvalidStructure)

	writeFile(t, dir, "main.py", "print('hello')")
	assert.ErrorIs(t, d.ValidateStructure(App{Dir: dir}), ErrInvalidStructure)

	writeFile(t, dir, "main.py", "from fastapi import FastAPI")
	assert.ErrorIs(t, d.ValidateStructure(App{Dir: dir}), ErrInvalidStructure)

	writeFile(t, dir, "main.py", "from fastapi import FastAPI\napp = FastAPI()")
	assert.NoError(t, d.ValidateStructure(App{Dir: dir}))

	writeFile(t, dir, "main.py", "import fastapi\napplication = fastapi.FastAPI()")
	assert.NoError(t, d.ValidateStructure(App{Dir: dir}))
}

func TestNextJSBuildVerifiesDotNext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"dependencies":{"next":"14.0.0"}}`)
	fake := runner.NewFake()
	d := &NextJS{run: fake}

	err := d.Build(context.Background(), App{Dir: dir})
	assert.ErrorIs(t, err, ErrBuildFailed)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".next"), 0o755))
	assert.NoError(t, d.Build(context.Background(), App{Dir: dir}))
	assert.Len(t, fake.CallsMatching("npm run build"), 2)
}

func TestNodeJSValidateNeedsStartScriptOrOverride(t *testing.T) {
	d := &NodeJS{run: runner.NewFake()}
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name":"x"}`)

	assert.ErrorIs(t, d.ValidateStructure(App{Dir: dir}), ErrInvalidStructure)
	assert.NoError(t, d.ValidateStructure(App{Dir: dir, StartCommand: "node server.js"}))
}

func TestNodeJSBuildOnlyWhenDeclared(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"scripts":{"start":"node server.js"}}`)
	fake := runner.NewFake()
	d := &NodeJS{run: fake}

	require.NoError(t, d.Build(context.Background(), App{Dir: dir}))
	assert.Empty(t, fake.CallsMatching("npm run build"))

	writeFile(t, dir, "package.json", `{"scripts":{"start":"node server.js","build":"tsc"}}`)
	require.NoError(t, d.Build(context.Background(), App{Dir: dir}))
	assert.Len(t, fake.CallsMatching("npm run build"), 1)
}

func TestFastAPIInstallFreshVenv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.py", "from fastapi import FastAPI")
	writeFile(t, dir, "requirements.txt", "fastapi\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".venv", "bin"), 0o755))

	fake := runner.NewFake()
	d := &FastAPI{run: fake}
	require.NoError(t, d.InstallDependencies(context.Background(), App{Dir: dir}))

	// stale venv removed before recreation
	assert.Len(t, fake.CallsMatching("python3 -m venv .venv"), 1)
	assert.Len(t, fake.CallsMatching(filepath.Join(dir, ".venv", "bin", "pip")+" install --upgrade pip"), 1)
	assert.Len(t, fake.CallsMatching(filepath.Join(dir, ".venv", "bin", "pip")+" install -r requirements.txt"), 1)
}

func TestFastAPIInstallDefaultPackagesWithoutRequirements(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.py", "from fastapi import FastAPI")

	fake := runner.NewFake()
	d := &FastAPI{run: fake}
	require.NoError(t, d.InstallDependencies(context.Background(), App{Dir: dir}))

	calls := fake.CallsMatching(filepath.Join(dir, ".venv", "bin", "pip") + " install fastapi")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "uvicorn[standard]")
	assert.Contains(t, calls[0], "python-dotenv")
}

func TestFastAPIStartCommand(t *testing.T) {
	d := &FastAPI{run: runner.NewFake()}
	cmd := d.StartCommand(App{Port: 8001})
	assert.Equal(t, ".venv/bin/python -m uvicorn main:app --host 0.0.0.0 --port 8001 --workers 1", cmd)
	assert.Equal(t, "custom", d.StartCommand(App{Port: 8001, StartCommand: "custom"}))
}

func TestNextJSStartCommand(t *testing.T) {
	d := &NextJS{run: runner.NewFake()}
	assert.Equal(t, "./node_modules/.bin/next start --port 3000", d.StartCommand(App{Port: 3000}))
}

func TestStaticValidateAndNoService(t *testing.T) {
	d := &Static{run: runner.NewFake()}

	dir := t.TempDir()
	assert.ErrorIs(t, d.ValidateStructure(App{Dir: dir}), ErrInvalidStructure)

	writeFile(t, dir, "index.html", "<html></html>")
	assert.NoError(t, d.ValidateStructure(App{Dir: dir}))
	assert.Empty(t, d.StartCommand(App{Port: 8080}))

	genDir := t.TempDir()
	writeFile(t, genDir, "package.json", `{"scripts":{"build":"vite build"}}`)
	assert.NoError(t, d.ValidateStructure(App{Dir: genDir}))
}

func TestEnvFileName(t *testing.T) {
	assert.Equal(t, ".env", EnvFileName(validator.TypeFastAPI))
	assert.Equal(t, ".env.production", EnvFileName(validator.TypeNextJS))
	assert.Equal(t, ".env.production", EnvFileName(validator.TypeNodeJS))
}

func TestSetupEnvFilePreservesExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.production", "API_KEY=shipped\nPORT=9999\n")

	app := App{
		Domain:  "example.com",
		Dir:     dir,
		Port:    3000,
		EnvVars: map[string]string{"API_KEY": "operator", "EXTRA": "1"},
	}
	require.NoError(t, SetupEnvFile(app, validator.TypeNextJS))

	vars, err := config.ReadEnvFile(filepath.Join(dir, ".env.production"))
	require.NoError(t, err)
	// the shipped env file wins over operator values, PORT included
	assert.Equal(t, "shipped", vars["API_KEY"])
	assert.Equal(t, "9999", vars["PORT"])
	assert.Equal(t, "1", vars["EXTRA"])
	assert.Equal(t, "production", vars["NODE_ENV"])
	assert.Equal(t, "localhost", vars["HOSTNAME"])
}

func TestSetupEnvFileInjectsPortOnlyWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env.production", "API_KEY=shipped\n")

	app := App{Domain: "example.com", Dir: dir, Port: 3000}
	require.NoError(t, SetupEnvFile(app, validator.TypeNextJS))

	vars, err := config.ReadEnvFile(filepath.Join(dir, ".env.production"))
	require.NoError(t, err)
	assert.Equal(t, "3000", vars["PORT"])
	assert.Equal(t, "shipped", vars["API_KEY"])
}

func TestSetupEnvFileFastAPIDefaults(t *testing.T) {
	dir := t.TempDir()
	app := App{Domain: "api.example.com", Dir: dir, Port: 8001}
	require.NoError(t, SetupEnvFile(app, validator.TypeFastAPI))

	vars, err := config.ReadEnvFile(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.Equal(t, "8001", vars["PORT"])
	assert.Equal(t, "0.0.0.0", vars["HOST"])
	assert.Equal(t, dir, vars["PYTHONPATH"])
	assert.Equal(t, "production", vars["ENVIRONMENT"])
	_, hasNodeEnv := vars["NODE_ENV"]
	assert.False(t, hasNodeEnv)
}
