package probe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oiweiwei/go-msrpc/dcerpc"
	"github.com/oiweiwei/go-msrpc/msrpc/dtyp"
	srvsvc "github.com/oiweiwei/go-msrpc/msrpc/srvs/srvsvc/v3"
	wkssvc "github.com/oiweiwei/go-msrpc/msrpc/wkst/wkssvc/v1"
	"github.com/oiweiwei/go-msrpc/ssp"
	"github.com/oiweiwei/go-msrpc/ssp/credential"
	"github.com/oiweiwei/go-msrpc/ssp/gssapi"
)

const smbPort = 445

type smbIdentity struct {
	ComputerName string
	Domain       string
}

type smbQueryFunc func(context.Context, dcerpc.Conn) (smbIdentity, error)

// SMBProber asks a host for its computer name over anonymous MSRPC,
// trying the workstation service before the server service.
type SMBProber struct {
	Timeout time.Duration
}

func NewSMBProber(timeout time.Duration) *SMBProber {
	return &SMBProber{Timeout: timeout}
}

func (p *SMBProber) Protocol() Protocol { return ProtocolSMB }

func (p *SMBProber) Probe(ctx context.Context, ip string) (Finding, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout, 2*time.Second)
	defer cancel()

	identity, err := querySMBEndpoint(ctx, ip, "wkssvc", fetchWKSSVCIdentity)
	if err != nil {
		if ctx.Err() != nil {
			return Finding{}, err
		}
		identity, err = querySMBEndpoint(ctx, ip, "srvsvc", fetchSRVSVCIdentity)
		if err != nil {
			return Finding{}, err
		}
	}

	finding := Finding{
		Name:     identity.ComputerName,
		Port:     smbPort,
		Services: []string{"_smb._tcp"},
		Metadata: map[string]string{},
	}
	if identity.Domain != "" {
		finding.Metadata["domain"] = identity.Domain
	}
	return finding, nil
}

func querySMBEndpoint(ctx context.Context, host, pipe string, fn smbQueryFunc) (smbIdentity, error) {
	if err := ctx.Err(); err != nil {
		return smbIdentity{}, err
	}

	secCtx := gssapi.NewSecurityContext(ctx,
		gssapi.WithCredential(credential.Anonymous()),
		gssapi.WithMechanismFactory(ssp.NTLM),
		gssapi.WithMechanismFactory(ssp.SPNEGO),
	)

	timeout := time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	conn, err := dcerpc.Dial(secCtx, host,
		dcerpc.WithEndpoint("ncacn_np:["+pipe+"]"),
		dcerpc.WithTimeout(timeout),
		dcerpc.WithSMBPort(smbPort),
	)
	if err != nil {
		return smbIdentity{}, err
	}
	defer func() {
		_ = conn.Close(secCtx)
	}()

	identity, err := fn(secCtx, conn)
	if err != nil {
		return smbIdentity{}, err
	}
	if identity.ComputerName == "" {
		return smbIdentity{}, ErrNoMatch
	}
	return identity, nil
}

func fetchWKSSVCIdentity(ctx context.Context, conn dcerpc.Conn) (smbIdentity, error) {
	client, err := wkssvc.NewWkssvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return smbIdentity{}, err
	}
	resp, err := client.GetInfo(ctx, &wkssvc.GetInfoRequest{Level: 100})
	if err != nil {
		return smbIdentity{}, err
	}
	if resp.WorkstationInfo == nil {
		return smbIdentity{}, errors.New("wkssvc: missing workstation info")
	}
	data, ok := resp.WorkstationInfo.GetValue().(*wkssvc.WorkstationInfo100)
	if !ok || data == nil {
		return smbIdentity{}, errors.New("wkssvc: unexpected info type")
	}
	return smbIdentity{
		ComputerName: normaliseSMBValue(data.ComputerName),
		Domain:       normaliseSMBValue(data.LANGroup),
	}, nil
}

func fetchSRVSVCIdentity(ctx context.Context, conn dcerpc.Conn) (smbIdentity, error) {
	client, err := srvsvc.NewSrvsvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return smbIdentity{}, err
	}
	resp, err := client.GetInfo(ctx, &srvsvc.GetInfoRequest{Level: 100})
	if err != nil {
		return smbIdentity{}, err
	}
	if resp.Info == nil {
		return smbIdentity{}, errors.New("srvsvc: missing server info")
	}
	data, ok := resp.Info.GetValue().(*dtyp.ServerInfo100)
	if !ok || data == nil {
		return smbIdentity{}, errors.New("srvsvc: unsupported info type")
	}
	return smbIdentity{ComputerName: normaliseSMBValue(data.Name)}, nil
}

func normaliseSMBValue(value string) string {
	return strings.TrimSpace(strings.Trim(value, "\x00"))
}
