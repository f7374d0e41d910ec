package npm

import "strings"

// TypeNPM is the package type recorded in identifiers produced here.
const TypeNPM = "NPM"

// PackageID identifies one package version. Namespace holds the scope
// ("@babel") for scoped packages and is empty otherwise.
type PackageID struct {
	Type      string
	Namespace string
	Name      string
	Version   string
}

// NewPackageID splits a possibly scoped package name into namespace and
// bare name and returns the identifier for the given version.
func NewPackageID(name, version string) PackageID {
	namespace := ""
	if strings.HasPrefix(name, "@") {
		if i := strings.Index(name, "/"); i > 0 {
			namespace = name[:i]
			name = name[i+1:]
		}
	}
	return PackageID{Type: TypeNPM, Namespace: namespace, Name: name, Version: version}
}

// FullName returns the package name including its scope prefix.
func (id PackageID) FullName() string {
	if id.Namespace == "" {
		return id.Name
	}
	return id.Namespace + "/" + id.Name
}

// String renders the canonical "Type:Namespace:Name:Version" form used as
// cache and graph keys.
func (id PackageID) String() string {
	return id.Type + ":" + id.Namespace + ":" + id.Name + ":" + id.Version
}

// Spec renders the "name@version" form accepted by yarn and npm commands.
func (id PackageID) Spec() string {
	if id.Version == "" {
		return id.FullName()
	}
	return id.FullName() + "@" + id.Version
}
