// Package appliance implements the lifecycle workflows for Avamar
// appliances: provisioning, deletion, inventory and image listing.
//
// Workflows talk to the virtualization platform only through the Platform
// interface declared in this package, and to the image store through
// ImageCatalog. Each workflow runs to completion within a single call; the
// only waits are on platform operations and the boot-readiness gate.
//
// Provisioning is not rolled back on failure. A machine that was deployed
// but not fully customized keeps configured=false in its metadata and
// reports the Provisioning phase until it is deleted.
//
// Errors returned by workflows are *Error values tagged with one of
// ErrNotFound, ErrInvalidNetwork, ErrArtifact or ErrPlatform, so callers
// can branch with errors.Is.
package appliance
