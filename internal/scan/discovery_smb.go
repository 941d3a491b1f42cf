package scan

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

const (
	smbPort        = 445
	smbCallTimeout = 3 * time.Second
)

var errNoComputerName = errors.New("smb: no computer name")

// smbEndpoint names a pipe and the RPC call that reads the computer name
// through it.
type smbEndpoint struct {
	pipe  string
	query func(context.Context, dcerpc.Conn) (string, error)
}

// smbEndpoints are tried in order. The workstation service answers on most
// Windows hosts, Samba usually only exposes the server service.
var smbEndpoints = []smbEndpoint{
	{pipe: "wkssvc", query: workstationName},
	{pipe: "srvsvc", query: serverName},
}

// lookupSMBName asks the host for its computer name over an anonymous
// named-pipe RPC session.
func lookupSMBName(ctx context.Context, host string) string {
	for _, ep := range smbEndpoints {
		if ctx.Err() != nil {
			return ""
		}
		if name, err := callSMB(ctx, host, ep); err == nil {
			return name
		}
	}
	return ""
}

func callSMB(ctx context.Context, host string, ep smbEndpoint) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, smbCallTimeout)
	defer cancel()

	secCtx := gssapi.NewSecurityContext(ctx,
		gssapi.WithCredential(credential.Anonymous()),
		gssapi.WithMechanismFactory(ssp.NTLM),
		gssapi.WithMechanismFactory(ssp.SPNEGO),
	)
	conn, err := dcerpc.Dial(secCtx, host,
		dcerpc.WithEndpoint("ncacn_np:["+ep.pipe+"]"),
		dcerpc.WithTimeout(smbCallTimeout),
		dcerpc.WithSMBPort(smbPort),
	)
	if err != nil {
		return "", err
	}
	defer conn.Close(secCtx)

	name, err := ep.query(secCtx, conn)
	if err != nil {
		return "", err
	}
	if name = trimSMBString(name); name == "" {
		return "", errNoComputerName
	}
	return name, nil
}

func workstationName(ctx context.Context, conn dcerpc.Conn) (string, error) {
	client, err := wkssvc.NewWkssvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return "", err
	}
	resp, err := client.GetInfo(ctx, &wkssvc.GetInfoRequest{Level: 100})
	if err != nil {
		return "", err
	}
	if resp.WorkstationInfo == nil {
		return "", errNoComputerName
	}
	info, ok := resp.WorkstationInfo.GetValue().(*wkssvc.WorkstationInfo100)
	if !ok || info == nil {
		return "", errNoComputerName
	}
	return info.ComputerName, nil
}

func serverName(ctx context.Context, conn dcerpc.Conn) (string, error) {
	client, err := srvsvc.NewSrvsvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return "", err
	}
	resp, err := client.GetInfo(ctx, &srvsvc.GetInfoRequest{Level: 100})
	if err != nil {
		return "", err
	}
	if resp.Info == nil {
		return "", errNoComputerName
	}
	info, ok := resp.Info.GetValue().(*dtyp.ServerInfo100)
	if !ok || info == nil {
		return "", errNoComputerName
	}
	return info.Name, nil
}

// trimSMBString strips the NUL terminators some servers include.
func trimSMBString(value string) string {
	return strings.TrimSpace(strings.Trim(value, "\x00"))
}
