// Package launch bootstraps a program from named components.
//
// Components are units resolved through a loader.Loader and turned into
// Component values by registered factories. Starting from the requested
// names, the launcher configures every component once, letting each one
// enqueue further components, then asks the first (primary) component for a
// launch target. The target unit is loaded and handed to its entry point
// together with the arguments every component contributed.
//
// The bootstrap runs as a handler chain: cascade, collect-arguments, launch.
package launch
