// Package lockfile reads and writes NuGet packages.lock.json files.
//
// A lock file records the packages resolved for every target of a project,
// so that later resolutions reproduce them exactly. A valid lock file pins
// the walker; an invalid or missing one is rewritten from the fresh graphs.
//
// # Lock File Structure
//
// The document holds a format version and one section per target, keyed by
// framework ("net6.0") or framework and runtime ("net6.0/linux-x64"):
//
//	{
//	  "version": 1,
//	  "dependencies": {
//	    "net6.0": {
//	      "Newtonsoft.Json": {
//	        "type": "Direct",
//	        "requested": "[13.0.1, )",
//	        "resolved": "13.0.1",
//	        "contentHash": "..."
//	      }
//	    }
//	  }
//	}
//
// # Usage
//
// Pin a walk to an existing lock file:
//
//	lf, err := lockfile.ReadFile("packages.lock.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := lf.Validate(root); err == nil {
//	    root.Locked = lf.Pins(sdk.Default())
//	}
//
// Record fresh graphs:
//
//	lf := lockfile.FromGraphs(root, graphs, nil)
//	if err := lf.WriteFile("packages.lock.json"); err != nil {
//	    log.Fatal(err)
//	}
//
// Reference: https://learn.microsoft.com/en-us/nuget/consume-packages/package-references-in-project-files#locking-dependencies
package lockfile
