package worker

// CacheVersion names the cache generation owned by this build. Override at
// link time with -ldflags "-X github.com/unishare/unishare-sw/internal/worker.CacheVersion=...".
var CacheVersion = "unishare-cache-v1"

// OfflinePath is served in place of a page that could not be loaded.
const OfflinePath = "/offline"

// ShellManifest lists the application shell cached at install.
var ShellManifest = []string{
	"/",
	"/login",
	"/signup",
	"/dashboard",
	OfflinePath,
	"/manifest.json",
	"/icons/icon-192x192.png",
	"/icons/icon-512x512.png",
	"/icons/apple-touch-icon.png",
}
