package variables

import (
	"os"
	"os/user"
	"runtime"
	"time"

	"github.com/OpenPeeDeeP/xdg"
)

// Built-in variable names, matching the data model's immutable-name list.
const (
	BuiltInOSVersion        = "VersionNT"
	BuiltInWindowsVolume    = "WindowsVolume"
	BuiltInWindowsFolder    = "WindowsFolder"
	BuiltInSystemFolder     = "SystemFolder"
	BuiltInSystemFolder64   = "System64Folder"
	BuiltInProgramFiles     = "ProgramFilesFolder"
	BuiltInProgramFiles64   = "ProgramFiles64Folder"
	BuiltInCommonFiles      = "CommonFilesFolder"
	BuiltInAppDataFolder    = "AppDataFolder"
	BuiltInTempFolder       = "TempFolder"
	BuiltInDesktopFolder    = "DesktopFolder"
	BuiltInFontsFolder      = "FontsFolder"
	BuiltInFavoritesFolder  = "FavoritesFolder"
	BuiltInPersonalFolder   = "PersonalFolder"
	BuiltInStartMenuFolder  = "StartMenuFolder"
	BuiltInAdminToolsFolder = "AdminToolsFolder"
	BuiltInLogonUser        = "LogonUser"
	BuiltInInstallerName    = "InstallerName"
	BuiltInInstallerVersion = "InstallerVersion"
	BuiltInSystemLanguageID = "SystemLanguageID"
	BuiltInUserLanguageID   = "UserLanguageID"
	BuiltInDate             = "Date"
	BuiltInRebootPending    = "RebootPending"
	BuiltInPrivileged       = "Privileged"
)

// RegisterBuiltIns wires every built-in variable into store with a lazy
// initializer resolved via the cross-platform known-folder lookups. Any
// initializer whose underlying lookup fails leaves its variable at
// type-none; a later read then returns NotFound rather than panicking.
func RegisterBuiltIns(store *Store, installerName, installerVersion string) {
	x := xdg.New("chainboot", installerName)

	dirInit := func(dir string) Initializer {
		return func() (Type, string, int64, error) {
			if dir == "" {
				return TypeNone, "", 0, os.ErrNotExist
			}
			return TypeString, dir, 0, nil
		}
	}

	store.RegisterBuiltIn(BuiltInWindowsVolume, false, dirInit(volumeRoot()))
	store.RegisterBuiltIn(BuiltInWindowsFolder, false, dirInit(windowsFolder()))
	store.RegisterBuiltIn(BuiltInSystemFolder, false, dirInit(windowsFolder()))
	store.RegisterBuiltIn(BuiltInSystemFolder64, false, dirInit(windowsFolder()))
	store.RegisterBuiltIn(BuiltInProgramFiles, false, dirInit(programFiles()))
	store.RegisterBuiltIn(BuiltInProgramFiles64, false, dirInit(programFiles()))
	store.RegisterBuiltIn(BuiltInCommonFiles, false, dirInit(programFiles()))
	store.RegisterBuiltIn(BuiltInAppDataFolder, false, dirInit(x.DataHome()))
	store.RegisterBuiltIn(BuiltInTempFolder, false, dirInit(os.TempDir()))
	store.RegisterBuiltIn(BuiltInDesktopFolder, false, dirInit(homeSubdir("Desktop")))
	store.RegisterBuiltIn(BuiltInFontsFolder, false, dirInit(x.CacheHome()))
	store.RegisterBuiltIn(BuiltInFavoritesFolder, false, dirInit(homeSubdir("Favorites")))
	store.RegisterBuiltIn(BuiltInPersonalFolder, false, dirInit(homeDir()))
	store.RegisterBuiltIn(BuiltInStartMenuFolder, false, dirInit(x.ConfigHome()))
	store.RegisterBuiltIn(BuiltInAdminToolsFolder, false, dirInit(x.ConfigHome()))

	store.RegisterBuiltIn(BuiltInOSVersion, false, func() (Type, string, int64, error) {
		return TypeVersion, runtime.GOOS, 0, nil
	})
	store.RegisterBuiltIn(BuiltInLogonUser, false, func() (Type, string, int64, error) {
		u, err := user.Current()
		if err != nil {
			return TypeNone, "", 0, err
		}
		return TypeString, u.Username, 0, nil
	})
	store.RegisterBuiltIn(BuiltInInstallerName, false, func() (Type, string, int64, error) {
		return TypeString, installerName, 0, nil
	})
	store.RegisterBuiltIn(BuiltInInstallerVersion, false, func() (Type, string, int64, error) {
		return TypeVersion, installerVersion, 0, nil
	})
	store.RegisterBuiltIn(BuiltInSystemLanguageID, false, func() (Type, string, int64, error) {
		return TypeNumeric, "", 1033, nil
	})
	store.RegisterBuiltIn(BuiltInUserLanguageID, false, func() (Type, string, int64, error) {
		return TypeNumeric, "", 1033, nil
	})
	store.RegisterBuiltIn(BuiltInDate, false, func() (Type, string, int64, error) {
		return TypeString, time.Now().Format("2006-01-02"), 0, nil
	})
	store.RegisterBuiltIn(BuiltInRebootPending, false, func() (Type, string, int64, error) {
		return TypeNumeric, "", 0, nil
	})
	store.RegisterBuiltIn(BuiltInPrivileged, false, func() (Type, string, int64, error) {
		if os.Geteuid() == 0 {
			return TypeNumeric, "", 1, nil
		}
		return TypeNumeric, "", 0, nil
	})
}

func homeDir() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return h
}

func homeSubdir(name string) string {
	h := homeDir()
	if h == "" {
		return ""
	}
	return h + string(os.PathSeparator) + name
}

func volumeRoot() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

func windowsFolder() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("WINDIR")
	}
	return "/usr/lib"
}

func programFiles() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("ProgramFiles")
	}
	return "/usr/local"
}
