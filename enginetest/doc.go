// Package enginetest provides a scriptable in-memory engine for tests.
//
// Images are registered up front with AddImage: type definitions plus Go
// function bodies keyed by "Full.Type#method". Collection is
// deterministic, an object with no pin and no movable root is reclaimed
// on the next CollectGarbage pass, which makes weak-reference and
// lifetime behavior directly observable.
package enginetest
