package constant

import "time"

const (
	// DefaultDirMode is the default file mode to apply to created directories.
	DefaultDirMode = 0o755
	// DefaultFileMode is the default file mode to apply to created files.
	DefaultFileMode = 0o600
	// DefaultWorldReadableFileMode is the default file mode to apply to files
	// that can be read by other processes. Munki and its admin tools read the
	// conditions file as non-root users.
	DefaultWorldReadableFileMode = 0o644

	// ManagedInstallsDir is Munki's working directory on the client.
	ManagedInstallsDir = "/Library/Managed Installs"
	// ConditionalItemsPath is the plist Munki merges into its predicate
	// evaluation context.
	ConditionalItemsPath = ManagedInstallsDir + "/ConditionalItems.plist"
	// ManifestsPath is where managedsoftwareupdate caches downloaded manifests.
	ManifestsPath = ManagedInstallsDir + "/manifests"
	// ADFailuresHistoryPath tracks consecutive Active Directory communication
	// failures across runs.
	ADFailuresHistoryPath = ManagedInstallsDir + "/ActiveDirectoryFailures.plist"
	// SelfServeManifestName is the manifest Managed Software Center writes for
	// optional installs. It is never the computer manifest.
	SelfServeManifestName = "SelfServeManifest"

	// DefaultExecTimeout bounds every external command invocation.
	DefaultExecTimeout = 30 * time.Second

	// EnvPrefix is prepended to every configuration environment variable.
	EnvPrefix = "MUNKI_CONDITIONS"
)

// ManagedInstallsPrefsPaths lists ManagedInstalls.plist locations in the
// order Munki honors them: configuration profile, root user domain, then
// local system domain.
var ManagedInstallsPrefsPaths = []string{
	"/Library/Managed Preferences/ManagedInstalls.plist",
	"/private/var/root/Library/Preferences/ManagedInstalls.plist",
	"/Library/Preferences/ManagedInstalls.plist",
}
