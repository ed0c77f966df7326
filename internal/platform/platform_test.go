package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutablePath(t *testing.T) {
	path := ExecutablePath("/opt/burncloud")

	if runtime.GOOS == "windows" {
		assert.Equal(t, filepath.Join("/opt/burncloud", "aria2c.exe"), path)
	} else {
		assert.Equal(t, filepath.Join("/opt/burncloud", "aria2c"), path)
	}
}

func TestEnsureDirectoryIsIdempotent(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "a", "b", "c")

	require.NoError(t, EnsureDirectory(target))
	require.NoError(t, EnsureDirectory(target))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMarkExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no executable bit to check on windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "binary")
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0644))

	require.NoError(t, MarkExecutable(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0111)
}

func TestInstallDirReturnsAbsolutePath(t *testing.T) {
	assert.True(t, filepath.IsAbs(InstallDir()))
}

func TestInstallDirResolvesWindowsLocalAppData(t *testing.T) {
	if runtime.GOOS != "windows" {
		t.Skip("exercises the windows branch of InstallDir")
	}
	t.Setenv("LOCALAPPDATA", `C:\Users\tester\AppData\Local`)
	assert.Equal(t, `C:\Users\tester\AppData\Local\BurnCloud`, InstallDir())
}

func TestInstallDirFallsBackToFixedWindowsDefault(t *testing.T) {
	if runtime.GOOS != "windows" {
		t.Skip("exercises the windows branch of InstallDir")
	}
	t.Setenv("LOCALAPPDATA", "")
	assert.Equal(t, windowsFixedInstallDir, InstallDir())
}

func TestInstallDirResolvesHomeDotBurncloud(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exercises the posix branch of InstallDir")
	}
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/.burncloud", InstallDir())
}

func TestInstallDirFallsBackToTmpWhenNoHome(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exercises the posix branch of InstallDir")
	}
	t.Setenv("HOME", "")
	assert.Equal(t, posixFixedInstallDir, InstallDir())
}
