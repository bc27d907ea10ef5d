// Package loader registers and boots the integrations behind enabled modules.
// Integration code is resolved from a Catalog by reference: a module's
// explicit integration ref, or the conventional ref derived from its key.
package loader
