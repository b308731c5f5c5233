// Package metadata persists the appliance metadata block inside the libvirt
// domain definition, so a machine's kind, version and provisioning state
// travel with the machine itself.
//
// The block is a namespaced element holding YAML:
//
//	<appliance xmlns="http://vlab.cofront.xyz/v1alpha1">
//	component: Avamar
//	created: "2026-10-16T12:00:00Z"
//	version: 19.2.0.155b
//	configured: true
//	generation: 1
//	owner: alice
//	</appliance>
package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
)

const (
	// Namespace is the XML namespace of the metadata element.
	Namespace = "http://vlab.cofront.xyz/v1alpha1"

	// Key is the namespace prefix libvirt uses when storing the element.
	Key = "vlab"
)

// Client is the subset of libvirt used to read and write domain metadata.
type Client interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// Element is the XML wrapper around the YAML metadata.
type Element struct {
	XMLName xml.Name `xml:"appliance"`
	Xmlns   string   `xml:"xmlns,attr"`
	YAML    string   `xml:",chardata"`
}

// Marshal renders meta as a metadata element suitable for DomainSetMetadata
// or for embedding in a domain's <metadata> section.
func Marshal(meta v1alpha1.MachineMeta) (string, error) {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata to YAML: %w", err)
	}

	out, err := xml.Marshal(Element{Xmlns: Namespace, YAML: "\n" + string(data)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}
	return string(out), nil
}

// Unmarshal parses a metadata element.
func Unmarshal(s string) (v1alpha1.MachineMeta, error) {
	var el Element
	if err := xml.Unmarshal([]byte(s), &el); err != nil {
		return v1alpha1.MachineMeta{}, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	var meta v1alpha1.MachineMeta
	if err := yaml.Unmarshal([]byte(el.YAML), &meta); err != nil {
		return v1alpha1.MachineMeta{}, fmt.Errorf("failed to unmarshal metadata YAML: %w", err)
	}
	return meta, nil
}

// Store replaces the metadata of a domain. impact selects whether the live
// domain, its persistent config, or both are changed.
func Store(c Client, dom libvirt.Domain, meta v1alpha1.MachineMeta, impact libvirt.DomainModificationImpact) error {
	el, err := Marshal(meta)
	if err != nil {
		return err
	}

	err = c.DomainSetMetadata(
		dom,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{el},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		impact,
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}
	return nil
}

// Load reads a domain's metadata. It reports false, with no error, when the
// domain carries no appliance metadata.
func Load(c Client, dom libvirt.Domain) (v1alpha1.MachineMeta, bool, error) {
	s, err := c.DomainGetMetadata(
		dom,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainAffectCurrent,
	)
	if err != nil {
		if IsMissing(err) {
			return v1alpha1.MachineMeta{}, false, nil
		}
		return v1alpha1.MachineMeta{}, false, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	meta, err := Unmarshal(s)
	if err != nil {
		return v1alpha1.MachineMeta{}, false, err
	}
	return meta, true, nil
}

// IsMissing reports whether err is libvirt's "no metadata" error.
func IsMissing(err error) bool {
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(libvirt.ErrNoDomainMetadata)
}
